package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionExamsRead allows viewing exams and their full tree.
	PermissionExamsRead Permission = "exams:read"

	// PermissionExamsWrite allows creating, editing and deleting exams, parts and questions.
	PermissionExamsWrite Permission = "exams:write"

	// PermissionMediaUpload allows attaching image and audio files to questions.
	PermissionMediaUpload Permission = "media:upload"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionExamsRead,
	PermissionExamsWrite,
	PermissionMediaUpload,
}

// PermissionCodes returns AllPermissions as plain strings.
func PermissionCodes() []string {
	codes := make([]string, len(AllPermissions))
	for i, p := range AllPermissions {
		codes[i] = string(p)
	}
	return codes
}
