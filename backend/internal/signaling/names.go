package signaling

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	petname "github.com/dustinkirkland/golang-petname"
)

func petnameSource() string {
	return petname.Generate(2, "-")
}

// generateUsername picks a name not used by any peer except self. After a
// few collisions it appends a number.
func (h *Hub) generateUsername(self string) string {
	for attempt := 0; ; attempt++ {
		name := h.names()
		if attempt >= 8 {
			name = fmt.Sprintf("%s-%d", name, randomIndex(1000))
		}
		if !h.presence.UsernameTaken(name, self) {
			return name
		}
	}
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		slog.Error("failed to generate random index", "error", err)
		return 0
	}
	return int(n.Int64())
}
