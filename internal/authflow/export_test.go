package authflow

// PendingState exposes the pending state token for tests.
func (s AuthSession) PendingState() string {
	if s.pending == nil {
		return ""
	}
	return s.pending.state
}

// PendingNonce exposes the pending nonce for tests.
func (s AuthSession) PendingNonce() string {
	if s.pending == nil {
		return ""
	}
	return s.pending.nonce
}

// PendingVerifier exposes the pending PKCE verifier for tests.
func (s AuthSession) PendingVerifier() string {
	if s.pending == nil {
		return ""
	}
	return s.pending.verifier
}
