package autosort

// Activity markers published around a sort.
const (
	ActivityGroup   = "plugins"
	ActivitySorting = "sorting"
)

// NotificationID used for every sort failure that replaces a previous one.
const NotificationSortFailed = "loot-failed"

// NotificationType selects how the host presents a notification.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Notification is a user-facing message published by the core.
type Notification struct {
	// ID lets a new notification replace an older one with the same ID.
	// Empty means always new.
	ID string

	Type    NotificationType
	Message string

	// Err is the raw failure, shown as supporting detail.
	Err error

	// Details carries extra context such as the game and its path.
	Details map[string]string

	// Persistent notifications stay until the user dismisses them.
	Persistent bool

	// Actions are offered as buttons on the notification.
	Actions []Action
}

// Action is a button on a notification. Run receives a dismiss callback.
type Action struct {
	Title string
	Run   func(dismiss func())
}

// Dialog is a modal shown on demand, usually by a notification action.
type Dialog struct {
	Kind    string // "info", "error", "question"
	Title   string
	Body    string // bbcode
	Buttons []string
}

// Host receives everything the core publishes. Implementations must be safe
// for concurrent use.
type Host interface {
	StartActivity(group, id string)
	StopActivity(group, id string)
	SetLoadOrder(order []string)
	Notify(n Notification)
	ShowDialog(d Dialog)
}

// State gives read access to application state owned by the host.
// Values are read at the moment they are needed, never cached.
type State interface {
	// AutoSort reports whether sorting runs without an explicit request.
	AutoSort() bool

	// ActiveProfile is the game id of the active profile, or "".
	ActiveProfile() string

	// GamePath is the installation directory of game.
	GamePath(game string) string

	// LoadOrder lists every plugin known to the load order, in order.
	LoadOrder() []string

	// EnabledPlugins lists the plugins currently enabled.
	EnabledPlugins() []string
}

// Layout resolves per-game file locations.
type Layout interface {
	PluginDir(game string) string
	MasterlistPath(game string) string
	UserlistPath(game string) string
}

// multiHost fans every call out to several hosts in order.
type multiHost []Host

// Tee returns a Host that forwards to each of hosts in order.
func Tee(hosts ...Host) Host {
	return multiHost(hosts)
}

func (m multiHost) StartActivity(group, id string) {
	for _, h := range m {
		h.StartActivity(group, id)
	}
}

func (m multiHost) StopActivity(group, id string) {
	for _, h := range m {
		h.StopActivity(group, id)
	}
}

func (m multiHost) SetLoadOrder(order []string) {
	for _, h := range m {
		h.SetLoadOrder(append([]string(nil), order...))
	}
}

func (m multiHost) Notify(n Notification) {
	for _, h := range m {
		h.Notify(n)
	}
}

func (m multiHost) ShowDialog(d Dialog) {
	for _, h := range m {
		h.ShowDialog(d)
	}
}
