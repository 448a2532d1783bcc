package config

type SecurityConfig interface {
	GetClientsCanAccessRootApp() bool
	GetAllowAutoRegisterUsers() bool
	GetAllowUnverifiedEmails() bool
	GetAdminIdentifier() string
	GetRootAppIdentifier() string
	GetAdminPassword() string
	GetSeedApps() []string
}

type Security struct {
	ClientsCanAccessRootApp bool     `env:"CLIENTS_CAN_ACCESS_ROOT_APP" envDefault:"false"`
	AllowAutoRegisterUsers  bool     `env:"ALLOW_AUTO_REGISTER_USERS" envDefault:"false"`
	AllowUnverifiedEmails   bool     `env:"ALLOW_UNVERIFIED_EMAILS" envDefault:"false"`
	AdminIdentifier         string   `env:"ADMIN_IDENT"`
	RootAppIdentifier       string   `env:"ROOT_APP_IDENTIFIER" envDefault:"root"`
	AdminPassword           string   `env:"ADMIN_PASSWORD"`
	SeedApps                []string `env:"SEED_APPS" envSeparator:","`
}

var _ SecurityConfig = Security{}

func (s Security) GetClientsCanAccessRootApp() bool {
	return s.ClientsCanAccessRootApp
}

func (s Security) GetAllowAutoRegisterUsers() bool {
	return s.AllowAutoRegisterUsers
}

func (s Security) GetAllowUnverifiedEmails() bool {
	return s.AllowUnverifiedEmails
}

func (s Security) GetAdminIdentifier() string {
	return s.AdminIdentifier
}

func (s Security) GetRootAppIdentifier() string {
	if s.RootAppIdentifier == "" {
		return "root"
	}
	return s.RootAppIdentifier
}

// GetAdminPassword is the bootstrap admin's initial password. Empty means one
// is generated on first start.
func (s Security) GetAdminPassword() string {
	return s.AdminPassword
}

// GetSeedApps lists tenant identifiers created at startup when missing.
func (s Security) GetSeedApps() []string {
	return s.SeedApps
}
