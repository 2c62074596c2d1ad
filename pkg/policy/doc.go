/*
Package policy decides which processes uiwarden may automate.

A Policy holds an allow list, a deny list, a default mode and a set of
development-only patterns. Engine.CheckProcess evaluates, first match wins:

 1. development exclude patterns (deny)
 2. deny list (deny)
 3. development allow paths (allow)
 4. allow list (allow)
 5. defaultMode: ALLOW_ALL or DENY_UNLISTED

A non-empty path that fails ValidatePath is denied before any rule runs.
Denials are Decision values with a Code, never errors, so callers can tell an
explicit block (DENY_LISTED) from a configuration gap (NOT_IN_ALLOW_LIST).

Policy files are YAML:

	defaultMode: DENY_UNLISTED
	allowList:
	  - name: notepad.exe
	  - pattern: C:\Program Files\Contoso\**
	    requiredSigner: Contoso Ltd
	denyList:
	  - path: C:\Windows\System32\cmd.exe
	development:
	  excludePatterns: ["*\\secrets\\*"]
	  allowPaths: ["C:\\dev\\**"]
*/
package policy
