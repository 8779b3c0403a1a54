// Package test holds small test-only helpers shared across packages,
// grounded on the teacher's util/test package (trimmed here to the pieces
// this domain's tests actually exercise: random blob bodies).
package test

import (
	"math/rand"
	"time"
)

func init() {
	RandSeed(time.Now().Nanosecond())
}

func RandSeed(seed int) {
	rand.Seed(int64(seed))
}

const letters = "abcdefghijklmnopqrstuvwxyz"

func RandBytes(n int) (b []byte) {
	b = make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return
}

func RandString(n int) string {
	return string(RandBytes(n))
}
