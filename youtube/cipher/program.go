package cipher

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

const jsIdent = `[a-zA-Z_$][a-zA-Z_0-9$]*`

type opKind int

const (
	opReverse opKind = iota + 1
	opSplice
	opSwap
)

type step struct {
	op  opKind
	arg int
}

var (
	// function NAME(a){a=a.split("");...;return a.join("")} and NAME=function(a){...}
	sigFuncRegexps = []*regexp.Regexp{
		regexp.MustCompile(`function(?:\s+` + jsIdent + `)?\(a\)\{a=a\.split\(""\);([^}]*?)return a\.join\(""\)\}`),
		regexp.MustCompile(jsIdent + `\s*=\s*function\(a\)\{a=a\.split\(""\);([^}]*?)return a\.join\(""\)\}`),
	}
	sigCallObjRegexp = regexp.MustCompile(`(` + jsIdent + `)(?:\.` + jsIdent + `|\[["']` + jsIdent + `["']\])\(a,\d+\)`)
	helperMethodRe   = regexp.MustCompile(`(` + jsIdent + `)\s*:\s*function\(([^)]*)\)\s*\{([^}]*)\}`)

	// .get("n"))&&(b=NAME(b) and .get("n"))&&(b=ARR[0](b)
	nFuncNameRegexps = []*regexp.Regexp{
		regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=(` + jsIdent + `)(?:\[(\d+)\])?\(` + jsIdent + `\)`),
		regexp.MustCompile(`\.get\("n"\).*?&&.*?\(b=(` + jsIdent + `)(?:\[(\d+)\])?\(` + jsIdent + `\)`),
	}
)

// Program holds one player.js body and the transforms parsed from it.
// Parsing happens lazily and at most once.
type Program struct {
	js string

	sigOnce  sync.Once
	steps    []step
	sigSrc   string
	stepsErr error

	nOnce sync.Once
	nSrc  string
	nErr  error
}

// NewProgram wraps a player.js body.
func NewProgram(js string) *Program {
	return &Program{js: js}
}

// Signature decodes an encrypted "s" value.
func (p *Program) Signature(ctx context.Context, s string) (string, error) {
	if s == "" {
		return "", NewError(ErrCodeSignatureInvalid, "empty signature")
	}
	p.sigOnce.Do(p.parseSignature)

	if len(p.steps) > 0 {
		return applySteps(s, p.steps), nil
	}
	if p.sigSrc == "" {
		return "", p.stepsErr
	}
	out, err := runJS(ctx, p.sigSrc, s)
	if err != nil {
		return "", wrapError(ErrCodeSignatureDecipher, "evaluate decipher function", err)
	}
	return out, nil
}

// N transforms the throttling "n" value. When player.js has no n function
// the value is returned unchanged.
func (p *Program) N(ctx context.Context, n string) (string, error) {
	p.nOnce.Do(p.parseN)
	if p.nErr != nil {
		return n, nil
	}
	out, err := runJS(ctx, p.nSrc, n)
	if err != nil {
		return "", wrapError(ErrCodeJSExecutionFailed, "evaluate n function", err)
	}
	// The n function reports internal failures by returning this prefix.
	if strings.HasPrefix(out, "enhanced_except_") {
		return "", NewError(ErrCodeJSExecutionFailed, "n function rejected input", out)
	}
	return out, nil
}

// HasNFunction reports whether an n transform was found in player.js.
func (p *Program) HasNFunction() bool {
	p.nOnce.Do(p.parseN)
	return p.nErr == nil
}

func (p *Program) parseSignature() {
	var fnSrc, body string
	for _, re := range sigFuncRegexps {
		if m := re.FindStringSubmatch(p.js); m != nil {
			fnSrc, body = m[0], m[1]
			break
		}
	}
	if fnSrc == "" {
		p.stepsErr = NewError(ErrCodeSignatureNotFound, "decipher function not found in player.js")
		return
	}

	om := sigCallObjRegexp.FindStringSubmatch(body)
	if om == nil {
		p.stepsErr = NewError(ErrCodeRegexParsingFailed, "decipher function calls no helper object")
		p.sigSrc = jsFunction(fnSrc)
		return
	}
	obj := om[1]

	objSrc, err := extractObject(p.js, obj)
	if err != nil {
		p.stepsErr = wrapError(ErrCodeRegexParsingFailed, "helper object", err)
		p.sigSrc = jsFunction(fnSrc)
		return
	}
	p.sigSrc = objSrc + ";" + jsFunction(fnSrc)

	steps, err := parseSteps(obj, objSrc, body)
	if err != nil {
		p.stepsErr = wrapError(ErrCodeRegexParsingFailed, "decipher operations", err)
		return
	}
	p.steps = steps
}

// jsFunction turns a matched declaration into an assignment to the entry
// point used by runJS.
func jsFunction(src string) string {
	i := strings.Index(src, "function")
	return jsEntry + "=" + src[i:]
}

// parseSteps maps helper methods to operations and reads the call sequence
// from the decipher body.
func parseSteps(obj, objSrc, body string) ([]step, error) {
	ops := make(map[string]opKind)
	for _, m := range helperMethodRe.FindAllStringSubmatch(objSrc, -1) {
		name, fbody := m[1], m[3]
		switch {
		case strings.Contains(fbody, ".reverse()"):
			ops[name] = opReverse
		case strings.Contains(fbody, ".splice(0,"):
			ops[name] = opSplice
		case strings.Contains(fbody, "a[0]") && strings.Contains(fbody, "%a.length"):
			ops[name] = opSwap
		}
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("no known operations in %s", obj)
	}

	callRe := regexp.MustCompile(regexp.QuoteMeta(obj) + `(?:\.(` + jsIdent + `)|\[["'](` + jsIdent + `)["']\])\(a,(\d+)\)`)
	var steps []step
	for _, c := range callRe.FindAllStringSubmatch(body, -1) {
		name := c[1]
		if name == "" {
			name = c[2]
		}
		op, ok := ops[name]
		if !ok {
			return nil, fmt.Errorf("unknown operation %s.%s", obj, name)
		}
		arg, err := strconv.Atoi(c[3])
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{op: op, arg: arg})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("empty operation list")
	}
	return steps, nil
}

func applySteps(s string, steps []step) string {
	r := []rune(s)
	for _, st := range steps {
		switch st.op {
		case opReverse:
			r = reverse(r)
		case opSplice:
			r = splice(r, st.arg)
		case opSwap:
			r = swap(r, st.arg)
		}
	}
	return string(r)
}

func (p *Program) parseN() {
	for _, re := range nFuncNameRegexps {
		m := re.FindStringSubmatch(p.js)
		if m == nil {
			continue
		}
		name := m[1]
		if m[2] != "" {
			idx, _ := strconv.Atoi(m[2])
			resolved, err := arrayElement(p.js, name, idx)
			if err != nil {
				p.nErr = err
				return
			}
			name = resolved
		}
		src, err := extractFunction(p.js, name)
		if err != nil {
			p.nErr = err
			return
		}
		p.nSrc = jsFunction(src)
		return
	}
	p.nErr = NewError(ErrCodeSignatureNotFound, "n function not found in player.js")
}

// arrayElement resolves var NAME=[a,b,c] to the identifier at idx.
func arrayElement(js, name string, idx int) (string, error) {
	re := regexp.MustCompile(`(?:var|let|const)\s+` + regexp.QuoteMeta(name) + `\s*=\s*\[([^\]]*)\]`)
	m := re.FindStringSubmatch(js)
	if m == nil {
		return "", NewError(ErrCodeRegexParsingFailed, "n function array not found", name)
	}
	items := strings.Split(m[1], ",")
	if idx < 0 || idx >= len(items) {
		return "", NewError(ErrCodeRegexParsingFailed, "n function index out of range", idx)
	}
	return strings.TrimSpace(items[idx]), nil
}

// extractObject returns the "var NAME={...}" declaration of a helper object.
func extractObject(js, name string) (string, error) {
	re := regexp.MustCompile(`(?:var|let|const)\s+` + regexp.QuoteMeta(name) + `\s*=\s*\{`)
	loc := re.FindStringIndex(js)
	if loc == nil {
		return "", fmt.Errorf("object %s not found", name)
	}
	end, err := matchBrace(js, loc[1]-1)
	if err != nil {
		return "", err
	}
	return "var " + name + "=" + js[loc[1]-1:end], nil
}

// extractFunction returns the full source of function NAME, declared either
// as "function NAME(" or "NAME=function(".
func extractFunction(js, name string) (string, error) {
	start := -1
	for _, def := range []string{name + "=function(", name + " = function(", "function " + name + "("} {
		if i := strings.Index(js, def); i >= 0 && (i == 0 || !isIdentByte(js[i-1])) {
			start = i
			break
		}
	}
	if start < 0 {
		return "", NewError(ErrCodeSignatureNotFound, "function body not found", name)
	}
	open := strings.IndexByte(js[start:], '{')
	if open < 0 {
		return "", NewError(ErrCodeJSParsingFailed, "function has no body", name)
	}
	end, err := matchBrace(js, start+open)
	if err != nil {
		return "", err
	}
	return js[start:end], nil
}

// matchBrace returns the index just past the brace that closes js[open],
// skipping braces inside string literals.
func matchBrace(js string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(js); i++ {
		c := js[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, NewError(ErrCodeJSParsingFailed, "unterminated block")
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c == '.' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func reverse(s []rune) []rune {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}

func splice(s []rune, n int) []rune {
	if n < 0 || n > len(s) {
		return s
	}
	return s[n:]
}

func swap(s []rune, n int) []rune {
	if len(s) <= 1 {
		return s
	}
	n = n % len(s)
	if n < 0 {
		n += len(s)
	}
	s[0], s[n] = s[n], s[0]
	return s
}
