/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package main

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/andreas-jonsson/xtchipset/emulator"
	"github.com/andreas-jonsson/xtchipset/platform"
	"github.com/andreas-jonsson/xtchipset/version"
)

var ver bool

func init() {
	flag.BoolVar(&ver, "v", false, "Print version information")
	flag.Bool("headless", false, "Show a progress bar instead of the monitor")
}

func main() {
	flag.Parse()

	if ver {
		fmt.Printf("%s (%s)\n", version.Current.FullString(), version.Hash)
		return
	}

	configs := []platform.Config{platform.ConfigWithTitle("xtchipset v" + version.Current.String())}
	if f := flag.Lookup("t"); f != nil {
		if ms, err := strconv.ParseInt(f.Value.String(), 10, 64); err == nil {
			configs = append(configs, platform.ConfigWithDuration(ms))
		}
	}

	printLogo()
	platform.Start(emulator.Start, configs...)
}

func printLogo() {
	fmt.Print(logo)
	fmt.Println("v" + version.Current.String())
	fmt.Print(" ───────═════ " + version.Copyright + " ══════───────\n\n")
}

var logo = `
██╗  ██╗████████╗ ██████╗██╗  ██╗██╗██████╗ ███████╗███████╗████████╗
╚██╗██╔╝╚══██╔══╝██╔════╝██║  ██║██║██╔══██╗██╔════╝██╔════╝╚══██╔══╝
 ╚███╔╝    ██║   ██║     ███████║██║██████╔╝███████╗█████╗     ██║   
 ██╔██╗    ██║   ██║     ██╔══██║██║██╔═══╝ ╚════██║██╔══╝     ██║   
██╔╝ ██╗   ██║   ╚██████╗██║  ██║██║██║     ███████║███████╗   ██║   
╚═╝  ╚═╝   ╚═╝    ╚═════╝╚═╝  ╚═╝╚═╝╚═╝     ╚══════╝╚══════╝   ╚═╝`
