package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrSecretNotSet means neither the static value nor a parameter store
// lookup produced a credential.
var ErrSecretNotSet = errors.New("paramstore: secret not set")

// Secret resolves a credential from a static value (normally an environment
// variable) or, when that is empty, from a parameter store entry. A
// successful lookup is cached for the lifetime of the process; failures are
// retried on the next call.
type Secret struct {
	static string
	getter Getter
	name   string

	mu    sync.Mutex
	value string
}

// NewSecret returns a Secret. getter may be nil and name may be empty, in
// which case only the static value is consulted.
func NewSecret(static string, getter Getter, name string) *Secret {
	return &Secret{
		static: strings.TrimSpace(static),
		getter: getter,
		name:   strings.TrimSpace(name),
	}
}

// StaticSecret is a Secret with no parameter store fallback.
func StaticSecret(value string) *Secret {
	return NewSecret(value, nil, "")
}

func (s *Secret) Resolve(ctx context.Context) (string, error) {
	if s == nil {
		return "", ErrSecretNotSet
	}
	if s.static != "" {
		return s.static, nil
	}
	if s.getter == nil || s.name == "" {
		return "", ErrSecretNotSet
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value != "" {
		return s.value, nil
	}

	v, err := s.getter.GetParameter(ctx, s.name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrSecretNotSet, err)
		}
		return "", err
	}
	if v == "" {
		return "", ErrSecretNotSet
	}
	s.value = v
	return v, nil
}
