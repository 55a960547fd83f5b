// Package httpapi serves the tokenauth operations over HTTP with JSON bodies.
//
// Routes:
//
//	POST /auth/register         {nickname, email, password}
//	POST /auth/login            {email, password}
//	POST /auth/refresh          {email, refreshToken}
//	POST /auth/logout           {email}
//	POST /auth/forgot-password  {email}
//	POST /auth/verify-code      {email, code}
//	POST /auth/reset-password   {email, code, newPassword}
//	GET  /users/me              bearer access token
//	GET  /healthz
//
// Form-encoded bodies and query parameters are accepted as well as JSON. Error bodies carry a
// generic message only.
package httpapi
