package metrics

import "testing"

func TestRegisterTwice(t *testing.T) {
	Register()
	Register() // second call must not panic on duplicate registration
}
