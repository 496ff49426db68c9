package server

import "time"

// This file is only for test purpose and is only loaded by test framework.

// TokenFor returns an admin access token.
func TokenFor(ioc IOC, email string) string {
	a := &auth{signingKey: ioc.SigningKey, ttl: time.Hour}
	token, err := a.TokenFor(email)
	if err != nil {
		panic(err)
	}
	return token
}
