package race

// Status is the lifecycle state of a race session. The values travel verbatim
// on the wire and in the snapshot file; display clients key off the exact
// strings, including the capitalized terminal one.
type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in-progress"
	StatusFinished   Status = "Finished"
)

// Driver is a confirmed entrant. IDs are dense and 1-based within a session.
type Driver struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Session is one race session. At most one session is in-progress at any
// time, and only the very first session ever created may be upcoming.
type Session struct {
	ID          int64    `json:"id"`
	SessionName string   `json:"sessionName"`
	Drivers     []Driver `json:"drivers"`
	Status      Status   `json:"status"`
}
