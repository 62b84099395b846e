package common

// Cookie names carrying the bearer tokens. The refresh token may also come
// in the request body under the same name as its cookie.
const (
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"
)

// AuthorizationScheme is the prefix of the Authorization header value.
const AuthorizationScheme = "Bearer "
