package introducer

// WAMP procedures and topics of the introducer.
const (
	ProcPublish   = "io.gridnode.introducer.publish"
	ProcUnpublish = "io.gridnode.introducer.unpublish"
	ProcList      = "io.gridnode.introducer.list"

	TopicAnnounce = "io.gridnode.introducer.announce"
	TopicDepart   = "io.gridnode.introducer.depart"

	// ErrBadAnnouncement is the error URI returned for malformed requests.
	ErrBadAnnouncement = "io.gridnode.introducer.bad_announcement"

	// ErrNotOwner is the error URI returned when a session tries to withdraw
	// an announcement it did not publish.
	ErrNotOwner = "io.gridnode.introducer.not_owner"

	// ErrStore is the error URI returned when the Store fails.
	ErrStore = "io.gridnode.introducer.store_failure"

	metaSessionOnLeave = "wamp.session.on_leave"
)
