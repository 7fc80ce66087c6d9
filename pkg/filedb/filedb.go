// Package filedb is an append-only line journal backed by a plain file.
// The token worker writes one json line per applied operation and the
// writer thread follows the file into MySQL.
package filedb

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nxadm/tail"
)

type Filedb struct {
	File     *os.File
	FilePath string

	// DrainHandler receives batches of journal lines from Drain
	DrainHandler func([]string) error
}

func New(filePath string) (fdb *Filedb, err error) {
	fdb = &Filedb{
		FilePath: filePath,
	}
	err = fdb.Open()

	return
}

func (f *Filedb) Open() (err error) {
	err = os.MkdirAll(filepath.Dir(f.FilePath), 0755)
	if err != nil {
		return
	}

	f.File, err = os.OpenFile(f.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)

	return
}

func (f *Filedb) Close() (err error) {
	if f.File == nil {
		return
	}

	err = f.File.Close()
	if err != nil {
		return
	}

	f.File = nil

	return
}

func (f *Filedb) WriteLine(s string) (err error) {
	_, err = f.File.WriteString(s)
	return
}

// ReadLastLine reads the last non-empty line of the file
func (f *Filedb) ReadLastLine() (s string, err error) {
	stat, err := f.File.Stat()
	if err != nil {
		return
	}

	// read the tail of the file and split on \n, a journal line is well
	// under 1024 bytes
	var b []byte
	var off int64
	size := stat.Size()
	if size < 1024 {
		b = make([]byte, size)
	} else {
		b = make([]byte, 1024)
		off = size - 1024
	}

	_, err = f.File.ReadAt(b, off)
	if err != nil {
		return
	}

	txt := strings.Trim(string(b), " \n")
	txts := strings.Split(txt, "\n")

	if len(txts) == 0 {
		return
	}

	s = txts[len(txts)-1]

	return
}

// ReadFirstLine reads the first non-empty line of the file
func (f *Filedb) ReadFirstLine() (s string, err error) {
	_, err = f.File.Seek(0, 0)
	if err != nil {
		return
	}

	reader := bufio.NewReader(f.File)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}

		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
	}

	return "", io.EOF
}

// Tailf continuously follows new lines and passes them to ch
func (f *Filedb) Tailf(ch chan<- string) (err error) {
	ta, err := tail.TailFile(f.FilePath, tail.Config{
		Follow:        true,
		ReOpen:        true,
		CompleteLines: true,
	})
	if err != nil {
		return
	}

	for line := range ta.Lines {
		if line.Err != nil {
			// do not skip a broken line, the journal must be applied in order
			err = line.Err
			return
		}

		ch <- line.Text
	}

	return
}

// Drain reads lines from ch and hands them to DrainHandler in batches,
// draining whatever is already buffered in the channel before each call
func (f *Filedb) Drain(ch <-chan string) (err error) {
	ss := make([]string, 100)

	for {
		size := 1
		if len(ch) > 1 {
			if len(ch) < len(ss) {
				size = len(ch)
			} else {
				size = len(ss)
			}
		}

		var ok bool
		for i := 0; i < size; i++ {
			ss[i], ok = <-ch
			if !ok {
				return
			}
		}

		err = f.DrainHandler(ss[:size])
		if err != nil {
			return
		}
	}
}
