// Package cli implements workbench-admin, the maintenance command line for
// accounts and project access.
//
// Commands connect straight to the database configured for the server. They
// are meant for bootstrapping the first administrator and for support work
// when the web interface is not an option.
//
// # Commands
//
// create-user: Add an account
//
//	workbench-admin create-user \
//		--email ops@example.com \
//		--name "Ops" \
//		--role administrator < password.txt
//
// reset-password: Replace a password (id or email)
//
//	workbench-admin reset-password --user ops@example.com --password 'new secret'
//
// grant / revoke: Manage project membership
//
//	workbench-admin grant --user 12 --project 4
//	workbench-admin revoke --user client@example.com --project 4
//
// issue-token: Print a bearer credential, for scripts and smoke tests
//
//	TOKEN=$(workbench-admin issue-token --user 12 --ttl 15m)
//	curl -H "Authorization: Bearer $TOKEN" http://localhost:8080/api/projects
//
// Every change is written to the audit log. Membership changes also drop the
// shared Redis membership cache entry when Redis is configured.
package cli
