package auth

import (
	"errors"
	"regexp"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

const missingAuthType = "auth/missing-auth"

var missingAuthRe = regexp.MustCompile(`(?i)missing auth for ([A-Za-z0-9_-]+)`)

// FindMissingAuthServices returns, in order and without repeats, the
// services the server says need a login. Errors tagged with the
// auth/missing-auth extension are read first; otherwise the message is
// matched against "Missing auth for <Service>".
func FindMissingAuthServices(errs gqlerror.List) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = normalize(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, e := range errs {
		if e == nil {
			continue
		}
		if t, _ := e.Extensions["type"].(string); t == missingAuthType {
			if svc, _ := e.Extensions["service"].(string); svc != "" {
				add(svc)
				continue
			}
		}
		if m := missingAuthRe.FindStringSubmatch(e.Message); m != nil {
			add(m[1])
		}
	}
	return out
}

// graphQLErrorer is implemented by transport errors that carry the
// server's structured error list.
type graphQLErrorer interface {
	GraphQLErrors() gqlerror.List
}

// MissingServices extracts missing-auth services from any error in err's
// chain that carries GraphQL errors.
func MissingServices(err error) []string {
	if err == nil {
		return nil
	}
	var ge graphQLErrorer
	if errors.As(err, &ge) {
		return FindMissingAuthServices(ge.GraphQLErrors())
	}
	var list gqlerror.List
	if errors.As(err, &list) {
		return FindMissingAuthServices(list)
	}
	var single *gqlerror.Error
	if errors.As(err, &single) {
		return FindMissingAuthServices(gqlerror.List{single})
	}
	if m := missingAuthRe.FindStringSubmatch(err.Error()); m != nil {
		return []string{strings.ToLower(m[1])}
	}
	return nil
}
