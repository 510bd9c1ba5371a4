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

package debug

import (
	"bytes"
	"io"
	"log"
	"os"
	"sync"

	"github.com/spf13/afero"
)

const DefaultHistory = 256

var internalLogger = NewLogger(os.Stderr, DefaultHistory)

func init() {
	log.SetOutput(internalLogger)
}

// Logger is the writer behind the standard logger. It keeps the most recent
// lines for the monitor and can tee everything to a file.
type Logger struct {
	sync.RWMutex

	console io.Writer
	tee     io.Writer
	mute    bool

	history []string
	next    int
	wrapped bool
	partial []byte
}

func NewLogger(console io.Writer, history int) *Logger {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Logger{console: console, history: make([]string, history)}
}

func (l *Logger) Write(p []byte) (n int, err error) {
	l.Lock()
	defer l.Unlock()

	if l.console != nil && !l.mute {
		if _, err = l.console.Write(p); err != nil {
			return
		}
	}
	if l.tee != nil {
		if _, err := l.tee.Write(p); err != nil {
			l.tee = nil
		}
	}

	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		l.push(string(l.partial[:i]))
		l.partial = l.partial[i+1:]
	}
	if len(l.partial) == 0 {
		l.partial = nil
	}
	return len(p), nil
}

func (l *Logger) push(line string) {
	l.history[l.next] = line
	if l.next++; l.next == len(l.history) {
		l.next = 0
		l.wrapped = true
	}
}

// Lines returns the kept lines, oldest first.
func (l *Logger) Lines() []string {
	l.RLock()
	defer l.RUnlock()

	if !l.wrapped {
		return append([]string(nil), l.history[:l.next]...)
	}
	lines := make([]string, 0, len(l.history))
	lines = append(lines, l.history[l.next:]...)
	return append(lines, l.history[:l.next]...)
}

// Mute stops console output. Lines are still recorded.
func (l *Logger) Mute(b bool) {
	l.Lock()
	l.mute = b
	l.Unlock()
}

func (l *Logger) SetTee(w io.Writer) {
	l.Lock()
	l.tee = w
	l.Unlock()
}

func MuteLogging(b bool) {
	internalLogger.Mute(b)
}

// History returns the most recent lines written to the standard logger.
func History() []string {
	return internalLogger.Lines()
}

// LogToFile tees the standard logger to name. The returned function stops it.
func LogToFile(fs afero.Fs, name string) (func() error, error) {
	fp, err := fs.Create(name)
	if err != nil {
		return nil, err
	}
	internalLogger.SetTee(fp)
	return func() error {
		internalLogger.SetTee(nil)
		return fp.Close()
	}, nil
}
