// Package access decides which admin roles may call which routes, using a rego policy.
package access

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Query is the rule every policy must define.
const Query = "data.repairshop.authz.allow"

//go:embed policy.rego
var defaultPolicy string

// Input is what the policy sees for one request.
type Input struct {
	Role   string `json:"role"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

type Authorizer struct {
	query rego.PreparedEvalQuery
}

// New prepares the policy in file, or the built-in one when file is empty.
func New(ctx context.Context, file string) (*Authorizer, error) {
	name, src := "policy.rego", defaultPolicy
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("access: read policy: %w", err)
		}
		name, src = file, string(b)
	}
	return Compile(ctx, name, src)
}

// Compile prepares a policy from source.
func Compile(ctx context.Context, name, src string) (*Authorizer, error) {
	q, err := rego.New(
		rego.Query(Query),
		rego.Module(name, src),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: compile policy: %w", err)
	}
	return &Authorizer{query: q}, nil
}

// Allow reports whether the policy grants in. An undefined result is a denial.
func (a *Authorizer) Allow(ctx context.Context, in Input) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return false, fmt.Errorf("access: evaluate: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	ok, _ := rs[0].Expressions[0].Value.(bool)
	return ok, nil
}
