package yt2ogg

import (
	"fmt"
	"io"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

// console writes the user facing lines of a run. Write errors are ignored.
type console struct {
	w     io.Writer
	color bool
}

func (c console) paint(code, s string) string {
	if !c.color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func (c console) yellow(s string) string { return c.paint(ansiYellow, s) }

func (c console) print(s string) {
	_, _ = io.WriteString(c.w, s)
}

func (c console) println(s string) {
	_, _ = fmt.Fprintln(c.w, s)
}

func (c console) failure(s string) {
	c.println(c.paint(ansiRed, s))
}

func (c console) success(s string) {
	c.println(c.paint(ansiGreen, s))
}
