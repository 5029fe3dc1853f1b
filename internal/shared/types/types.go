package types

// Config is the root configuration mapped from gorealm.ini.
type Config struct {
	LogConf LogConf `ini:"log"`

	// Relays holds one entry per [relay_*] section, in file order.
	// Populated manually by the config loader.
	Relays []RelayConf `ini:"-"`
}

// LogConf maps the [log] section.
type LogConf struct {
	Level  string `ini:"level"`
	Format string `ini:"format"` // "console" or "json"
	File   string `ini:"file"`   // empty means stderr
}

// RelayConf describes one relay instance.
type RelayConf struct {
	Listen    string `ini:"listen"`
	Remote    string `ini:"remote"`
	Host      string `ini:"host"`
	Path      string `ini:"path"`
	TLS       bool   `ini:"tls"`
	Insecure  bool   `ini:"insecure"`
	SendProxy bool   `ini:"send_proxy"`
	Transport string `ini:"transport"` // "tcp" (default) or "ws"
	UseUDP    bool   `ini:"use_udp"`
}
