package mockapi

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// User is one row of the demo dataset.
type User struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	JoinedDate string `json:"joinedDate"`
	LastActive string `json:"lastActive"`
}

// Roles and Statuses are the values Generate draws from.
var (
	Roles    = []string{"Admin", "Editor", "Viewer", "Contributor"}
	Statuses = []string{"active", "inactive", "pending"}
)

const dateLayout = time.DateOnly

// Generate returns n users. The same seed always yields the same users.
// Join dates fall in 2020-2024 and last activity in 2024.
func Generate(n int, seed uint64) []User {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	users := make([]User, n)
	for i := range users {
		id := i + 1
		users[i] = User{
			ID:         id,
			Name:       fmt.Sprintf("User %d", id),
			Email:      fmt.Sprintf("user%d@example.com", id),
			Role:       Roles[r.IntN(len(Roles))],
			Status:     Statuses[r.IntN(len(Statuses))],
			JoinedDate: randomDate(r, 2020+r.IntN(5)),
			LastActive: randomDate(r, 2024),
		}
	}
	return users
}

func randomDate(r *rand.Rand, year int) string {
	d := time.Date(year, time.Month(1+r.IntN(12)), 1+r.IntN(28), 0, 0, 0, 0, time.UTC)
	return d.Format(dateLayout)
}
