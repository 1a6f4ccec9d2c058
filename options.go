package mqtt

import (
	"io"
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultKeepAlive    = 20 * time.Minute
	DefaultMsgTimeout   = 30 * time.Second
	DefaultMaxMessage   = 256 << 20 // 256 MiB
	MaxClientIDLen      = 23
	MaxUsernameLen      = 128
	MaxPasswordLen      = 128
	MaxWillTopicLen     = 128
)

// will holds the optional Last Will and Testament configuration.
type will struct {
	topic   string
	payload []byte
	qos     QoS
	retain  bool
}

// sessionOptions holds a Session's configuration; only settable while
// unattached.
type sessionOptions struct {
	clientID     string
	cleanSession bool

	username string
	password string
	hasAuth  bool

	will *will

	keepAlive   time.Duration
	idleTimeout time.Duration
	maxMessage  int
	msgTimeout  time.Duration

	logger *slog.Logger

	onAttach func(s *Session) error
	onEvent  EventCallback
}

func defaultSessionOptions() *sessionOptions {
	return &sessionOptions{
		cleanSession: true,
		keepAlive:    DefaultKeepAlive,
		idleTimeout:  0, // 0 = effectively unbounded
		maxMessage:   DefaultMaxMessage,
		msgTimeout:   DefaultMsgTimeout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option configures a Session, in the functional-options style.
type Option func(*sessionOptions)

// WithClientID sets the client identifier.
func WithClientID(id string) Option {
	return func(o *sessionOptions) { o.clientID = id }
}

// WithCleanSession sets the CONNECT clean-session flag.
func WithCleanSession(clean bool) Option {
	return func(o *sessionOptions) { o.cleanSession = clean }
}

// WithCredentials sets the username/password carried in CONNECT.
func WithCredentials(username, password string) Option {
	return func(o *sessionOptions) {
		o.username = username
		o.password = password
		o.hasAuth = true
	}
}

// WithWill sets the Last Will and Testament. qos must not be 3.
func WithWill(topic string, payload []byte, qos QoS, retain bool) Option {
	return func(o *sessionOptions) {
		o.will = &will{topic: topic, payload: payload, qos: qos, retain: retain}
	}
}

// WithKeepAlive sets the keep-alive interval. A zero or negative value
// resets to DefaultKeepAlive.
func WithKeepAlive(d time.Duration) Option {
	return func(o *sessionOptions) {
		if d <= 0 {
			d = DefaultKeepAlive
		}
		o.keepAlive = d
	}
}

// WithIdleTimeout sets the idle timeout before a TIMEOUT event fires.
// Zero means effectively unbounded.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.idleTimeout = d }
}

// WithMaxMessageSize caps inbound and outbound packet size.
func WithMaxMessageSize(bytes int) Option {
	return func(o *sessionOptions) { o.maxMessage = bytes }
}

// WithMsgTimeout sets the retransmit threshold for awaiting-ack messages
//.
func WithMsgTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.msgTimeout = d }
}

// WithLogger sets the structured logger used for engine diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *sessionOptions) { o.logger = l }
}

// WithOnAttach installs the on-demand attach hook invoked when an API call
// needs a transport and none is attached. The hook
// must call Session.Attach synchronously before returning.
func WithOnAttach(fn func(s *Session) error) Option {
	return func(o *sessionOptions) { o.onAttach = fn }
}

// WithEventCallback installs the callback that receives ATTACH/CONNECTED/
// DISCONNECT/TIMEOUT events.
func WithEventCallback(cb EventCallback) Option {
	return func(o *sessionOptions) { o.onEvent = cb }
}
