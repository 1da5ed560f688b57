// Package criteria evaluates a success criterion's "measurable" boolean
// expression against a fixed symbol table derived from a task's recorded
// facts.
//
// The evaluator is a small hand-rolled recursive-descent parser rather than
// an expression-language dependency: the sandbox must stay restricted to a
// closed symbol set with no function calls and no attribute access, and
// general query languages are strictly more powerful than that.
package criteria

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cklxx/taskctl/pkg/errs"
	"github.com/cklxx/taskctl/pkg/types"
)

// Symbols is the fixed, closed symbol table an expression may reference.
type Symbols struct {
	ActualHours        float64
	EstimatedHours     float64
	DeadlineMissed     bool
	FeedbackQuality    float64
	FeedbackTimeliness float64
}

// FromTask derives the symbol table from a task's current recorded facts.
func FromTask(t types.Task) Symbols {
	s := Symbols{}
	if t.ActualHours != nil {
		s.ActualHours = *t.ActualHours
	}
	if t.EstimatedHours != nil {
		s.EstimatedHours = *t.EstimatedHours
	}
	if t.FeedbackQuality != nil {
		s.FeedbackQuality = float64(*t.FeedbackQuality)
	}
	if t.FeedbackTimeliness != nil {
		s.FeedbackTimeliness = float64(*t.FeedbackTimeliness)
	}
	if t.Deadline != nil && t.CompletedAt != nil {
		s.DeadlineMissed = t.CompletedAt.After(*t.Deadline)
	}
	return s
}

func (s Symbols) lookup(name string) (float64, bool, error) {
	switch name {
	case "actual_hours":
		return s.ActualHours, false, nil
	case "estimated_hours":
		return s.EstimatedHours, false, nil
	case "feedback_quality":
		return s.FeedbackQuality, false, nil
	case "feedback_timeliness":
		return s.FeedbackTimeliness, false, nil
	case "deadline_missed":
		return 0, s.DeadlineMissed, nil
	case "true":
		return 0, true, nil
	case "false":
		return 0, false, nil
	default:
		return 0, false, &errs.TemplateError{Detail: fmt.Sprintf("unknown symbol %q", name)}
	}
}

// Evaluate parses and evaluates expr against sym, returning whether the
// criterion is satisfied. Division by zero anywhere in the
// expression makes the whole criterion evaluate false rather than erroring.
func Evaluate(expr string, sym Symbols) (bool, error) {
	resolved, err := substituteIdents(expr, sym)
	if err != nil {
		return false, err
	}
	p := &parser{toks: tokenize(resolved)}
	v, isBool, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if err := p.expectEOF(); err != nil {
		return false, err
	}
	_ = isBool
	if p.divByZero {
		return false, nil
	}
	return p.truth(v), nil
}

// value carries either a numeric or boolean result through the recursive
// descent; booleans are held in their own field with a flag, and numOf maps
// them to 0/1 wherever a number is needed.
type value struct {
	num     float64
	boolean bool
	isBool  bool
}

type parser struct {
	toks      []token
	pos       int
	divByZero bool
}

func (p *parser) truth(v value) bool {
	if v.isBool {
		return v.boolean
	}
	return v.num != 0
}

func (p *parser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expectEOF() error {
	if p.peek().kind != tokEOF {
		return &errs.TemplateError{Detail: fmt.Sprintf("unexpected token %q", p.peek().text)}
	}
	return nil
}

func (p *parser) parseOr() (value, bool, error) {
	left, _, err := p.parseAnd()
	if err != nil {
		return value{}, false, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, _, err := p.parseAnd()
		if err != nil {
			return value{}, false, err
		}
		left = value{boolean: p.truth(left) || p.truth(right), isBool: true}
	}
	return left, true, nil
}

func (p *parser) parseAnd() (value, bool, error) {
	left, _, err := p.parseNot()
	if err != nil {
		return value{}, false, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, _, err := p.parseNot()
		if err != nil {
			return value{}, false, err
		}
		left = value{boolean: p.truth(left) && p.truth(right), isBool: true}
	}
	return left, true, nil
}

func (p *parser) parseNot() (value, bool, error) {
	if p.peek().kind == tokNot {
		p.next()
		v, _, err := p.parseNot()
		if err != nil {
			return value{}, false, err
		}
		return value{boolean: !p.truth(v), isBool: true}, true, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (value, bool, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return value{}, false, err
	}
	op := p.peek()
	switch op.kind {
	case tokLt, tokLe, tokGt, tokGe, tokEq, tokNe:
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return value{}, false, err
		}
		return value{boolean: compare(op.kind, left, right), isBool: true}, true, nil
	default:
		return left, left.isBool, nil
	}
}

// parseAdditive and parseMultiplicative implement the arithmetic criterion
// expressions need (e.g. "actual_hours / estimated_hours < 1"); the fixed
// symbol table stays numeric-only so these never touch identifiers directly
// (substituteIdents has already resolved them to literals).
func (p *parser) parseAdditive() (value, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return value{}, err
	}
	for {
		switch p.peek().kind {
		case tokPlus:
			p.next()
			right, err := p.parseMultiplicative()
			if err != nil {
				return value{}, err
			}
			left = value{num: numOf(left) + numOf(right)}
		case tokMinus:
			p.next()
			right, err := p.parseMultiplicative()
			if err != nil {
				return value{}, err
			}
			left = value{num: numOf(left) - numOf(right)}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseMultiplicative() (value, error) {
	left, err := p.parseOperand()
	if err != nil {
		return value{}, err
	}
	for {
		switch p.peek().kind {
		case tokStar:
			p.next()
			right, err := p.parseOperand()
			if err != nil {
				return value{}, err
			}
			left = value{num: numOf(left) * numOf(right)}
		case tokSlash:
			p.next()
			right, err := p.parseOperand()
			if err != nil {
				return value{}, err
			}
			if numOf(right) == 0 {
				p.divByZero = true
				left = value{num: 0}
				continue
			}
			left = value{num: numOf(left) / numOf(right)}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseOperand() (value, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		v, _, err := p.parseOr()
		if err != nil {
			return value{}, err
		}
		if p.peek().kind != tokRParen {
			return value{}, &errs.TemplateError{Detail: "expected )"}
		}
		p.next()
		return v, nil
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return value{}, &errs.TemplateError{Detail: fmt.Sprintf("bad number %q", t.text)}
		}
		return value{num: n}, nil
	case tokIdent:
		return value{}, &errs.TemplateError{Detail: fmt.Sprintf("unresolved identifier %q", t.text)}
	default:
		return value{}, &errs.TemplateError{Detail: fmt.Sprintf("unexpected token %q", t.text)}
	}
}

func compare(op tokenKind, l, r value) bool {
	lf, rf := numOf(l), numOf(r)
	switch op {
	case tokLt:
		return lf < rf
	case tokLe:
		return lf <= rf
	case tokGt:
		return lf > rf
	case tokGe:
		return lf >= rf
	case tokEq:
		return lf == rf
	case tokNe:
		return lf != rf
	}
	return false
}

func numOf(v value) float64 {
	if v.isBool {
		if v.boolean {
			return 1
		}
		return 0
	}
	return v.num
}

// tokenize and parseOperand above handle numbers/parens/operators; the
// remaining piece is identifier resolution against Symbols, done by
// substituting identifiers with literal values before tokenizing so the
// parser itself never needs a symbol table.
func substituteIdents(expr string, sym Symbols) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(expr) {
		c := expr[i]
		if isIdentStart(c) {
			j := i + 1
			for j < len(expr) && isIdentPart(expr[j]) {
				j++
			}
			name := expr[i:j]
			switch strings.ToLower(name) {
			case "and", "or", "not":
				// Boolean keywords are left in place for tokenize to classify.
				b.WriteString(name)
				i = j
				continue
			}
			n, boolean, err := sym.lookup(name)
			if err != nil {
				return "", err
			}
			if name == "deadline_missed" || name == "true" || name == "false" {
				if boolean {
					b.WriteString("1==1")
				} else {
					b.WriteString("1==0")
				}
			} else {
				b.WriteString(strconv.FormatFloat(n, 'f', -1, 64))
			}
			i = j
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c byte) bool { return isIdentStart(c) || (c >= '0' && c <= '9') }
