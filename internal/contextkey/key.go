package contextkey

type ctxKey string

func (k ctxKey) String() string { return "tracelens/" + string(k) }

const (
	ProjectKey ctxKey = "project"
)
