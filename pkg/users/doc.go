// Package users persists accounts and adapts the two stored identity shapes
// (role string and legacy is_admin flag) to auth.Identity.
package users
