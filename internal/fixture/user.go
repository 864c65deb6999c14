// internal/fixture/user.go
package fixture

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// User is the throwaway identity a scenario instance registers and logs in
// with. It only lives for one invocation and is never persisted.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Username  string
	Password  string
	Phone     string
	CEP       string
	Street    string
	City      string
	State     string
	ZipCode   string
	SSN       string
}

// NewUser generates a user whose e-mail, username and numeric fields are
// unique per call.
func NewUser() User {
	id := uuid.New()
	short := strings.ReplaceAll(id.String(), "-", "")[:10]
	digits := digitsFrom(id, 19)

	return User{
		ID:        id.String(),
		FirstName: "Teste",
		LastName:  "Flowcheck " + strings.ToUpper(short[:4]),
		Email:     fmt.Sprintf("qa.%s@example.com", short),
		Username:  "qa" + short,
		Password:  "Fc!" + short,
		Phone:     "119" + digits[:8],
		CEP:       digits[8:16],
		Street:    "Rua das Flores, " + digits[16:19],
		City:      "São Paulo",
		State:     "SP",
		ZipCode:   digits[:5],
		SSN:       digits[3:12],
	}
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Lookup resolves a ${user.<field>} placeholder.
func (u User) Lookup(field string) (string, bool) {
	switch field {
	case "id":
		return u.ID, true
	case "firstName":
		return u.FirstName, true
	case "lastName":
		return u.LastName, true
	case "fullName", "name":
		return u.FullName(), true
	case "email":
		return u.Email, true
	case "username":
		return u.Username, true
	case "password":
		return u.Password, true
	case "phone":
		return u.Phone, true
	case "cep":
		return u.CEP, true
	case "street":
		return u.Street, true
	case "city":
		return u.City, true
	case "state":
		return u.State, true
	case "zipCode":
		return u.ZipCode, true
	case "ssn":
		return u.SSN, true
	}
	return "", false
}

// Fields lists every name Lookup understands.
func Fields() []string {
	return []string{"id", "firstName", "lastName", "fullName", "name", "email", "username", "password", "phone", "cep", "street", "city", "state", "zipCode", "ssn"}
}

// digitsFrom turns the random bytes of id into n decimal digits.
func digitsFrom(id uuid.UUID, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		v := int(id[i%len(id)]) + (i/len(id))*7
		b.WriteByte(byte('0' + v%10))
	}
	return b.String()
}
