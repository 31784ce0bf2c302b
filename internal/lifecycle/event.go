package lifecycle

// Kind is a host lifecycle transition pushed into the pipeline.
type Kind string

const (
	Created      Kind = "created"
	Started      Kind = "started"
	Resumed      Kind = "resumed"
	Paused       Kind = "paused"
	Stopped      Kind = "stopped"
	Destroyed    Kind = "destroyed"
	ScreenViewed Kind = "screen_viewed"
)

func (k Kind) Valid() bool {
	switch k {
	case Created, Started, Resumed, Paused, Stopped, Destroyed, ScreenViewed:
		return true
	}
	return false
}

// Event is one host notification. Screen and Category are set for ScreenViewed.
// URL is the link a Created surface was opened with, if any.
type Event struct {
	Kind     Kind
	Screen   string
	Category string
	URL      string
}

// Names of the automatically tracked application events.
const (
	ApplicationInstalled    = "Application Installed"
	ApplicationUpdated      = "Application Updated"
	ApplicationOpened       = "Application Opened"
	ApplicationBackgrounded = "Application Backgrounded"
	DeepLinkOpened          = "Deep Link Opened"
)
