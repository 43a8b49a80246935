package catalog

import (
	"time"
)

// Mode selects the shape of a catalog query.
type Mode int

const (
	// ModeFull asks for everything changed since the last full sync.
	ModeFull Mode = iota
	// ModeScoped asks for the maps of one identifier, ignoring sync history.
	ModeScoped
)

// AllKeyword is the CLI argument selecting a full sync.
const AllKeyword = "all"

// Query is either Full() or Scoped(id).
type Query struct {
	Mode Mode
	ID   string
}

func Full() Query {
	return Query{Mode: ModeFull}
}

func Scoped(id string) Query {
	return Query{Mode: ModeScoped, ID: id}
}

// ParseQuery maps the CLI argument to a query: `all` is a full sync, anything else
// is taken literally as an identifier.
func ParseQuery(arg string) Query {
	if arg == AllKeyword {
		return Full()
	}
	return Scoped(arg)
}

func (q Query) IsFull() bool {
	return q.Mode == ModeFull
}

func (q Query) String() string {
	if q.IsFull() {
		return AllKeyword
	}
	return q.ID
}

// Item is one downloadable map as reported by the service.
type Item struct {
	URL         string    `json:"url"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Response is the decoded catalog document.
type Response struct {
	// ServerNow is the service clock at response time. It stamps the next full sync.
	ServerNow time.Time `json:"now"`
	Items     []Item    `json:"toUpdate"`
}
