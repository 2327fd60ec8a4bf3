package tool

import "github.com/conclave-ai/conclave/pkg/models"

// NewDefaultRegistry builds the full built-in tool set. Each run constructs
// its own registry; nothing here is shared process state.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()

	bindings := []struct {
		def  models.ToolDef
		impl Impl
	}{
		{publishDef, implPublish},
		{checkpointDef, implCheckpoint},
		{createWorkItemDef, implCreateWorkItem},
		{suggestNextDef, implSuggestNext},

		{sendMessageDef, implSendMessage},
		{checkMessagesDef, implCheckMessages},
		{askHumanDef, implAskHuman},

		{readFileDef, implReadFile},
		{writeFileDef, implWriteFile},
		{listFilesDef, implListFiles},
		{readRefDef, implReadRef},

		{bashDef, implBash},
		{webSearchDef, implWebSearch},
		{webFetchDef, implWebFetch},

		{memoryWriteDef, implMemoryWrite},
		{memoryReadDef, implMemoryRead},
		{memorySearchDef, implMemorySearch},

		{scheduleDef, implSchedule},
		{listTriggersDef, implListTriggers},
		{cancelTriggerDef, implCancelTrigger},

		{assignWorkerDef, implAssignWorker},
		{spawnWorkerDef, implSpawnWorker},
		{checkBoardDef, implCheckBoard},
		{reconveneDef, implReconvene},
		{finishDef, implFinish},
	}

	for _, b := range bindings {
		if err := r.Register(b.def, b.impl); err != nil {
			return nil, err
		}
	}
	return r, nil
}
