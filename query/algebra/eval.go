// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package algebra

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/rdf"
)

// ErrUnbound is returned when evaluating an expression that references a
// variable with no value.
var ErrUnbound = errors.New("unbound variable")

// ErrType is returned when an expression is applied to operands of the wrong
// type, such as ordering an IRI against a number.
var ErrType = errors.New("type error")

// Eval evaluates e against the solution b.
func Eval(e Expr, b binding.Set) (rdf.Term, error) {
	switch e := e.(type) {
	case *Constant:
		return e.Value, nil
	case *Variable:
		if v, ok := b.Get(e.Name); ok {
			return v, nil
		}
		return rdf.Term{}, fmt.Errorf("%w: ?%s", ErrUnbound, e.Name)
	case *Bound:
		return rdf.Boolean(b.Has(e.Var.Name)), nil
	case *Not:
		v, err := EvalBool(e.Arg, b)
		if err != nil {
			return rdf.Term{}, err
		}
		return rdf.Boolean(!v), nil
	case *And:
		// SPARQL's logical-and: false wins over an error.
		l, lerr := EvalBool(e.Left, b)
		if lerr == nil && !l {
			return rdf.Boolean(false), nil
		}
		r, rerr := EvalBool(e.Right, b)
		if rerr == nil && !r {
			return rdf.Boolean(false), nil
		}
		if lerr != nil {
			return rdf.Term{}, lerr
		}
		if rerr != nil {
			return rdf.Term{}, rerr
		}
		return rdf.Boolean(true), nil
	case *Or:
		// SPARQL's logical-or: true wins over an error.
		l, lerr := EvalBool(e.Left, b)
		if lerr == nil && l {
			return rdf.Boolean(true), nil
		}
		r, rerr := EvalBool(e.Right, b)
		if rerr == nil && r {
			return rdf.Boolean(true), nil
		}
		if lerr != nil {
			return rdf.Term{}, lerr
		}
		if rerr != nil {
			return rdf.Term{}, rerr
		}
		return rdf.Boolean(false), nil
	case *SameTerm:
		l, err := Eval(e.Left, b)
		if err != nil {
			return rdf.Term{}, err
		}
		r, err := Eval(e.Right, b)
		if err != nil {
			return rdf.Term{}, err
		}
		return rdf.Boolean(l == r), nil
	case *Compare:
		l, err := Eval(e.Left, b)
		if err != nil {
			return rdf.Term{}, err
		}
		r, err := Eval(e.Right, b)
		if err != nil {
			return rdf.Term{}, err
		}
		res, err := compareTerms(e.Op, l, r)
		if err != nil {
			return rdf.Term{}, err
		}
		return rdf.Boolean(res), nil
	}
	panic(fmt.Sprintf("Eval: unexpected expression type %T", e))
}

// EvalBool evaluates e against b and returns its effective boolean value.
func EvalBool(e Expr, b binding.Set) (bool, error) {
	v, err := Eval(e, b)
	if err != nil {
		return false, err
	}
	res, ok := v.Bool()
	if !ok {
		return false, fmt.Errorf("%w: %v has no boolean value", ErrType, v)
	}
	return res, nil
}

// IsConstant returns true if e references no variables.
func IsConstant(e Expr) bool {
	return len(ExprVars(e)) == 0
}

func compareTerms(op CompareOp, l, r rdf.Term) (bool, error) {
	if ln, ok := l.Number(); ok {
		if rn, ok := r.Number(); ok {
			return applyOrder(op, ln.Cmp(rn)), nil
		}
	}
	switch op {
	case OpEqual:
		return l == r, nil
	case OpNotEqual:
		return l != r, nil
	}
	if isStringLiteral(l) && isStringLiteral(r) && l.Lang == r.Lang {
		return applyOrder(op, strings.Compare(l.Value, r.Value)), nil
	}
	if l.IsLiteral() && r.IsLiteral() && l.Datatype == rdf.XSDBoolean && r.Datatype == rdf.XSDBoolean {
		lb, _ := l.Bool()
		rb, _ := r.Bool()
		return applyOrder(op, boolOrder(lb)-boolOrder(rb)), nil
	}
	return false, fmt.Errorf("%w: cannot order %v and %v", ErrType, l, r)
}

func isStringLiteral(t rdf.Term) bool {
	return t.IsLiteral() && (t.Datatype == rdf.XSDString || t.Datatype == rdf.RDFLangStr)
}

func boolOrder(b bool) int {
	if b {
		return 1
	}
	return 0
}

func applyOrder(op CompareOp, c int) bool {
	switch op {
	case OpEqual:
		return c == 0
	case OpNotEqual:
		return c != 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	}
	panic(fmt.Sprintf("applyOrder: unexpected operator %v", op))
}
