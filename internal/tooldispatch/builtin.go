package tooldispatch

// BuiltinTools groups the engine's built-in server tools, constructed by the
// composition root (cmd/) with whatever credentials/workspace roots those
// packages need, and wired here into one Registry.
type BuiltinTools struct {
	// WebSearch, WebFetch, and the file tools come from internal/tools/
	// {websearch,files}; nil entries are simply not registered.
	WebSearch ServerTool
	WebFetch  ServerTool
	FileRead  ServerTool
	FileWrite ServerTool
	FileEdit  ServerTool
	FilePatch ServerTool

	// Documents backs the document_search tool; nil gets a fresh empty index.
	Documents *DocumentIndex
	// Tasks backs the task_list tool; nil gets a fresh empty store.
	Tasks *TaskListStore
}

// NewBuiltinRegistry wires BuiltinTools into a Registry: externally-grounded
// IO tools (web_search, web_fetch, file read/write/edit/patch) register as
// server-provenance; the intrinsic, dependency-free document_search and
// task_list tools register as system-provenance. Registration errors here
// indicate a programming error (duplicate/invalid names), so the caller is
// expected to check err and fail fast at startup.
func NewBuiltinRegistry(tools BuiltinTools) (*Registry, error) {
	reg := NewRegistry()

	for _, tool := range []ServerTool{tools.WebSearch, tools.WebFetch, tools.FileRead, tools.FileWrite, tools.FileEdit, tools.FilePatch} {
		if tool == nil {
			continue
		}
		if err := reg.RegisterServer(tool); err != nil {
			return nil, err
		}
	}

	docs := tools.Documents
	if docs == nil {
		docs = NewDocumentIndex()
	}
	if err := reg.RegisterSystem(NewDocumentSearchTool(docs)); err != nil {
		return nil, err
	}

	taskStore := tools.Tasks
	if taskStore == nil {
		taskStore = NewTaskListStore()
	}
	if err := reg.RegisterSystem(NewTaskListTool(taskStore)); err != nil {
		return nil, err
	}

	return reg, nil
}
