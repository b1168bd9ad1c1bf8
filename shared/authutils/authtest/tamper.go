package authtest

import "strings"

// TamperSignature flips one character in the middle of a JWT signature.
// The result keeps a valid shape but no longer matches its signature.
func TamperSignature(token string) string {
	dot := strings.LastIndex(token, ".")
	if dot < 0 || dot == len(token)-1 {
		return token + "x"
	}
	sig := []byte(token[dot+1:])
	i := len(sig) / 2
	if sig[i] == 'A' {
		sig[i] = 'B'
	} else {
		sig[i] = 'A'
	}
	return token[:dot+1] + string(sig)
}
