/*
Package icerr defines the closed error taxonomy used across the
configuration-protocol and data-transport substrate (spec §7).

Every failure that crosses a package boundary in this module is either a
plain Go error from the standard library (I/O, parsing) or one of the
Kind values declared here, wrapped with context via New/Wrap. Callers that
need to branch on failure type use errors.As against *Error and inspect
Kind; callers that only need a message use Error() directly.

fill_error_buffer's role — producing the final human-readable string shown
to an operator — is played by (*Error).Error(), which composes Kind,
message and any carried detail (source line number, node id, key name)
into one line.
*/
package icerr
