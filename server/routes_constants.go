package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteAuthCSRF   = "/auth/csrf"
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"
	RouteAuthMe     = "/auth/me"

	// Auth Routes - Admin single sign-on
	RouteSSOStart    = "/auth/sso/start"
	RouteSSOCallback = "/auth/sso/callback"

	// Trainee Routes
	RouteTraineeSelectSponsor = "/trainee/select-sponsor"

	RouteHealth = "/health"
)

// Form field names
const (
	FieldEmail     = "email"
	FieldPassword  = "password"
	FieldToken     = "token"
	FieldSponsorID = "sponsor_id"
	FieldForm      = "form"
)
