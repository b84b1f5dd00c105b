package testcase

import "github.com/ajxudir/asttest/pkg/warnings"

// FailToken is an outstanding reason for the test to fail. Scenarios create
// one before an operation that must complete and remove it once it has.
type FailToken struct {
	id  int
	msg string
}

// Message returns the text logged when the token is still present at the end.
func (t *FailToken) Message() string { return t.msg }

// CreateFailToken registers a fail token. The test fails if the token is
// still present when the test ends.
func (tc *TestCase) CreateFailToken(msg string) *FailToken {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.nextToken++
	tok := &FailToken{id: tc.nextToken, msg: msg}
	tc.failTokens = append(tc.failTokens, tok)
	return tok
}

// RemoveFailToken removes tok. Removing an unknown token is a no-op.
func (tc *TestCase) RemoveFailToken(tok *FailToken) {
	if tok == nil {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for i, t := range tc.failTokens {
		if t.id == tok.id {
			tc.failTokens = append(tc.failTokens[:i], tc.failTokens[i+1:]...)
			return
		}
	}
}

// FailTokens returns the outstanding tokens in creation order.
func (tc *TestCase) FailTokens() []*FailToken {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]*FailToken(nil), tc.failTokens...)
}

// checkFailTokens fails the test once per outstanding token.
func (tc *TestCase) checkFailTokens() {
	for _, tok := range tc.FailTokens() {
		warnings.Errorf("Fail token present: %s", tok.msg)
		tc.Fail("Fail token present: " + tok.msg)
	}
}
