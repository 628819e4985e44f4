package asm

import (
	"regexp"
	"strings"
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineLabel
	lineInstr
)

// sourceLine is one tokenized line of assembler source. num is 1-based.
type sourceLine struct {
	num      int
	kind     lineKind
	label    string
	mnemonic string
	operands []string
}

var labelPattern = regexp.MustCompile(`^([A-Za-z_.][A-Za-z0-9_.]*):$`)

func stripComment(s string) string {
	if i := strings.IndexAny(s, ";#"); i >= 0 {
		return s[:i]
	}
	return s
}

func isSeparator(r rune) bool {
	return r == ',' || r == ' ' || r == '\t' || r == '\r'
}

func tokenize(src string) []sourceLine {
	raw := strings.Split(src, "\n")
	lines := make([]sourceLine, 0, len(raw))
	for i, text := range raw {
		l := sourceLine{num: i + 1}
		text = strings.TrimSpace(stripComment(text))
		switch {
		case text == "":
			l.kind = lineBlank
		case labelPattern.MatchString(text):
			l.kind = lineLabel
			l.label = labelPattern.FindStringSubmatch(text)[1]
		default:
			fields := strings.FieldsFunc(text, isSeparator)
			l.kind = lineInstr
			l.mnemonic = strings.ToLower(fields[0])
			l.operands = fields[1:]
		}
		lines = append(lines, l)
	}
	return lines
}
