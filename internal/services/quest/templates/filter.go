package templates

import (
	"fmt"
	"strings"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
)

// filterDeclarations declares the fields an AIP-160 list filter may use.
func filterDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("name", filtering.TypeString),
		filtering.DeclareIdent("status", filtering.TypeString),
		filtering.DeclareIdent("category", filtering.TypeString),
		filtering.DeclareIdent("author", filtering.TypeString),
		filtering.DeclareIdent("version", filtering.TypeString),
		filtering.DeclareIdent("skill", filtering.TypeString),
		filtering.DeclareIdent("theme", filtering.TypeString),
		filtering.DeclareIdent("tags", filtering.TypeList(filtering.TypeString)),
		filtering.DeclareIdent("step_count", filtering.TypeInt),
		filtering.DeclareIdent("reward_score", filtering.TypeInt),
	)
}

// parseFilter parses a filter string. An empty filter yields nil.
func parseFilter(filterStr string) (*expr.Expr, error) {
	if strings.TrimSpace(filterStr) == "" {
		return nil, nil
	}
	decls, err := filterDeclarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	filter, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, apperrors.Validation("invalid filter", []apperrors.Violation{{
			Path:    "filter",
			Rule:    "syntax",
			Message: err.Error(),
		}})
	}
	return filter.CheckedExpr.Expr, nil
}

// fieldValue resolves a filter field against a template.
func fieldValue(t template.Template, name string) (any, bool) {
	switch name {
	case "name":
		return t.Name, true
	case "status":
		return string(t.Status), true
	case "category":
		return t.Category, true
	case "author":
		return t.Author, true
	case "version":
		return t.Version, true
	case "skill":
		return t.Quest.RealWorldSkill, true
	case "theme":
		return t.Quest.FantasyTheme, true
	case "tags":
		return t.Tags, true
	case "step_count":
		return int64(len(t.Quest.Steps)), true
	case "reward_score":
		return int64(t.Quest.Reward.Score), true
	default:
		return nil, false
	}
}

// matches evaluates a parsed filter against t. A nil filter matches all.
func matches(e *expr.Expr, t template.Template) (bool, error) {
	if e == nil {
		return true, nil
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return evalCall(kind.CallExpr, t)
	default:
		return false, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func evalCall(call *expr.Expr_Call, t template.Template) (bool, error) {
	switch call.Function {
	case filtering.FunctionAnd:
		return evalBinary(call.Args, t, func(l, r bool) bool { return l && r })
	case filtering.FunctionOr:
		return evalBinary(call.Args, t, func(l, r bool) bool { return l || r })
	case filtering.FunctionNot:
		if len(call.Args) != 1 {
			return false, fmt.Errorf("NOT requires 1 argument")
		}
		ok, err := matches(call.Args[0], t)
		return !ok, err
	case filtering.FunctionHas:
		return evalHas(call.Args, t)
	case filtering.FunctionEquals, filtering.FunctionNotEquals,
		filtering.FunctionLessThan, filtering.FunctionLessEquals,
		filtering.FunctionGreaterThan, filtering.FunctionGreaterEquals:
		return evalCompare(call.Function, call.Args, t)
	default:
		return false, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func evalBinary(args []*expr.Expr, t template.Template, combine func(l, r bool) bool) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("logical operator requires 2 arguments")
	}
	left, err := matches(args[0], t)
	if err != nil {
		return false, err
	}
	right, err := matches(args[1], t)
	if err != nil {
		return false, err
	}
	return combine(left, right), nil
}

// evalHas implements ":". On lists it tests membership; on strings it tests
// for a case-insensitive substring.
func evalHas(args []*expr.Expr, t template.Template) (bool, error) {
	field, value, err := fieldAndConst(args, t)
	if err != nil {
		return false, err
	}
	needle, ok := value.(string)
	if !ok {
		return false, fmt.Errorf("has operator requires a string value")
	}
	switch v := field.(type) {
	case []string:
		for _, item := range v {
			if strings.EqualFold(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case string:
		return strings.Contains(strings.ToLower(v), strings.ToLower(needle)), nil
	default:
		return false, fmt.Errorf("has operator unsupported on %T", field)
	}
}

func evalCompare(function string, args []*expr.Expr, t template.Template) (bool, error) {
	field, value, err := fieldAndConst(args, t)
	if err != nil {
		return false, err
	}
	var cmp int
	switch l := field.(type) {
	case string:
		r, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("type mismatch: string vs %T", value)
		}
		cmp = strings.Compare(strings.ToLower(l), strings.ToLower(r))
	case int64:
		r, ok := value.(int64)
		if !ok {
			return false, fmt.Errorf("type mismatch: int vs %T", value)
		}
		cmp = compareInts(l, r)
	default:
		return false, fmt.Errorf("comparison unsupported on %T", field)
	}
	switch function {
	case filtering.FunctionEquals:
		return cmp == 0, nil
	case filtering.FunctionNotEquals:
		return cmp != 0, nil
	case filtering.FunctionLessThan:
		return cmp < 0, nil
	case filtering.FunctionLessEquals:
		return cmp <= 0, nil
	case filtering.FunctionGreaterThan:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func fieldAndConst(args []*expr.Expr, t template.Template) (any, any, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return nil, nil, fmt.Errorf("expected identifier, got %T", args[0].GetExprKind())
	}
	field, ok := fieldValue(t, ident.IdentExpr.GetName())
	if !ok {
		return nil, nil, fmt.Errorf("unknown field: %s", ident.IdentExpr.GetName())
	}
	constant, ok := args[1].GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return nil, nil, fmt.Errorf("expected constant, got %T", args[1].GetExprKind())
	}
	switch kind := constant.ConstExpr.GetConstantKind().(type) {
	case *expr.Constant_StringValue:
		return field, kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return field, kind.Int64Value, nil
	default:
		return nil, nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

func compareInts(l, r int64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}
