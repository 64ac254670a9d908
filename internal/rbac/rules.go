package rbac

// RolePermissions is the default policy. A trailing "*" matches a prefix.
var RolePermissions = map[string][]string{
	"student": {
		"course:view",
		"course:enroll",
		"exam:take",
		"practice:use",
		"problem:view",
		"problem:submit",
		"challenge:view",
		"challenge:join",
		"leaderboard:view",
		"stats:view-own",
	},
	"professor": {
		"course:view",
		"course:create",
		"announcement:create",
		"template:*",
		"question:*",
		"exam:grade",
		"exam:export",
		"practice:use",
		"problem:*",
		"challenge:view",
		"challenge:create",
		"leaderboard:view",
		"stats:view-own",
	},
	"admin": {
		"*",
	},
}
