// Package model defines domain entities used by services and stores.
package model

// User is an account owned by this system. Passwords are never stored in plaintext.
type User struct {
	Username string `json:"username"` // unique key
	Name     string `json:"name"`
	PwdHash  []byte `json:"-"` // Argon2id(password, Salt)
	Salt     []byte `json:"-"`
	Token    string `json:"token,omitempty"` // set only on successful login
}

// Group is a named, user-owned collection of catalog game ids.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	GameIDs     []string `json:"gameIds"`
}

// GroupDetails is a display-ready group with game ids resolved to names, in GameIDs order.
type GroupDetails struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Games       []string `json:"games"`
}

// Taxon is a mechanic or category from the catalog vocabulary.
type Taxon struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Game is a catalog record. It is read through on every reference and never persisted.
type Game struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	ImageURL    string `json:"imageUrl"`
	Rank        int    `json:"rank"`
	Description string `json:"description"`

	// details only
	Mechanics     []Taxon `json:"mechanics,omitempty"`
	Categories    []Taxon `json:"categories,omitempty"`
	YearPublished int     `json:"yearPublished,omitempty"`
}

// Guest describes the bootstrap account created at startup.
type Guest struct {
	Username string
	Name     string
	Password string
	Token    string
}
