package interpreter

import (
	"fmt"
	"sort"
	"strings"

	"byterun/pkg/object"
)

// bindArguments maps call arguments onto fn's parameters: positionals
// first, then keywords, then defaults for whatever is still unbound. Extra
// arguments go to *args and **kwargs when the code declares them.
func bindArguments(fn *Function, args []object.Value, kwargs map[string]object.Value) (Namespace, error) {
	u := fn.Code
	params := u.Params()
	varargs, hasVarArgs := u.VarArgsName()
	varkw, hasVarKw := u.VarKeywordsName()

	fail := func(format string, a ...any) error {
		return &ArgumentBindingError{Function: fn.Name, Message: fmt.Sprintf(format, a...)}
	}

	ns := make(Namespace, len(u.VarNames))

	var extra object.Tuple
	for i, a := range args {
		if i < len(params) {
			ns[params[i]] = a
			continue
		}
		extra = append(extra, a)
	}
	if len(extra) > 0 && !hasVarArgs {
		return nil, fail("takes %s but %d were given", plural(len(params), "positional argument"), len(args))
	}
	if hasVarArgs {
		if extra == nil {
			extra = object.Tuple{}
		}
		ns[varargs] = extra
	}

	var extraKw *object.Dict
	if hasVarKw {
		extraKw = object.NewDict()
	}

	names := make([]string, 0, len(kwargs))
	for k := range kwargs {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		if isParam(params, k) {
			if _, dup := ns[k]; dup {
				return nil, fail("got multiple values for argument '%s'", k)
			}
			ns[k] = kwargs[k]
			continue
		}
		if !hasVarKw {
			return nil, fail("got an unexpected keyword argument '%s'", k)
		}
		if err := extraKw.Set(k, kwargs[k]); err != nil {
			return nil, err
		}
	}
	if hasVarKw {
		ns[varkw] = extraKw
	}

	firstDefault := len(params) - len(fn.Defaults)
	var missing []string
	for i, p := range params {
		if _, ok := ns[p]; ok {
			continue
		}
		if i >= firstDefault {
			ns[p] = fn.Defaults[i-firstDefault]
			continue
		}
		missing = append(missing, "'"+p+"'")
	}
	if len(missing) > 0 {
		return nil, fail("missing %d required positional %s: %s", len(missing), pluralWord(len(missing), "argument"), strings.Join(missing, ", "))
	}

	return ns, nil
}

func isParam(params []string, name string) bool {
	for _, p := range params {
		if p == name {
			return true
		}
	}
	return false
}

func plural(n int, word string) string {
	return fmt.Sprintf("%d %s", n, pluralWord(n, word))
}

func pluralWord(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
