// Package storefront is the backend-for-frontend of the AirCare storefront.
//
// Visiting a login or signup page mounts a flow for the browser's client; the page
// then drives it through /api/flow/{variant}/... Guarded pages go through
// middleware.Guard.
//
// # What this package must NOT do
//
//   - Talk to the challenge backend except through a mounted flow.
//   - Write session state except through Engine.Logout and the flows.
package storefront
