// resource/collections.go
package resource

// The two collections proxied by the BFF. Adding a collection means adding a
// descriptor here and mounting its routes; the proxy algorithms need no
// changes.

// Clients is the client directory: sorted by display name, searched over the
// name and free-form notes.
var Clients = Descriptor{
	Name:          "clients",
	Label:         "Client",
	OrderBy:       "name_or_business",
	SearchColumns: []string{"name_or_business", "notes"},
}

// Tasks is the task board: sorted by the manual ordering column, searched
// over title and description, filterable by status and due-date window.
// "finalizado" is the terminal status written by Complete.
var Tasks = Descriptor{
	Name:           "tasks",
	Label:          "Task",
	OrderBy:        "order",
	SearchColumns:  []string{"title", "description"},
	StatusColumn:   "status",
	DateColumn:     "due_date",
	TerminalStatus: "finalizado",
}
