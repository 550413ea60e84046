package filter

import "strings"

func (e *Expression) evaluate(ctx *Context) bool { return e.Or.evaluate(ctx) }
func (e *Expression) threadTableOnly() bool      { return e.Or.threadTableOnly() }

func (o *OrExpr) evaluate(ctx *Context) bool {
	if o.Left.evaluate(ctx) {
		return true
	}
	for _, r := range o.Right {
		if r.evaluate(ctx) {
			return true
		}
	}
	return false
}

func (o *OrExpr) threadTableOnly() bool {
	if !o.Left.threadTableOnly() {
		return false
	}
	for _, r := range o.Right {
		if !r.threadTableOnly() {
			return false
		}
	}
	return true
}

func (a *AndExpr) evaluate(ctx *Context) bool {
	if !a.Left.evaluate(ctx) {
		return false
	}
	for _, r := range a.Right {
		if !r.evaluate(ctx) {
			return false
		}
	}
	return true
}

func (a *AndExpr) threadTableOnly() bool {
	if !a.Left.threadTableOnly() {
		return false
	}
	for _, r := range a.Right {
		if !r.threadTableOnly() {
			return false
		}
	}
	return true
}

func (u *Unary) evaluate(ctx *Context) bool {
	if u.Not != nil {
		return !u.Not.evaluate(ctx)
	}
	return u.Primary.evaluate(ctx)
}

func (u *Unary) threadTableOnly() bool {
	if u.Not != nil {
		return u.Not.threadTableOnly()
	}
	return u.Primary.threadTableOnly()
}

func (p *Primary) evaluate(ctx *Context) bool {
	if p.Sub != nil {
		return p.Sub.evaluate(ctx)
	}
	return p.Comparison.evaluate(ctx)
}

func (p *Primary) threadTableOnly() bool {
	if p.Sub != nil {
		return p.Sub.threadTableOnly()
	}
	return p.Comparison.threadTableOnly()
}

func (c *Comparison) threadTableOnly() bool {
	spec, ok := resolveField(c.Field)
	return ok && spec.threadOnly
}

func (c *Comparison) evaluate(ctx *Context) bool {
	spec, ok := resolveField(c.Field)
	if !ok {
		return false
	}
	fv := spec.get(ctx)
	if !fv.present {
		return false
	}

	switch {
	case c.Eq != nil:
		return compareEq(fv, c.Eq)
	case c.Neq != nil:
		return !compareEq(fv, c.Neq)
	case c.Contains != nil:
		return strings.Contains(fv.str, valueString(c.Contains))
	case c.In != nil:
		for _, v := range c.In {
			if compareEq(fv, v) {
				return true
			}
		}
		return false
	}
	return false
}

func compareEq(fv fieldValue, v *Value) bool {
	if fv.isNum {
		if n, ok := valueInt(v); ok {
			return fv.num == n
		}
		return false
	}
	return fv.str == valueString(v)
}
