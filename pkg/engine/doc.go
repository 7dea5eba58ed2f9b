/*
Package engine is the boundary between gpubox and the container engine.

Client lists every engine capability the lifecycle manager needs. CLI
implements it on top of the docker command line: each call builds an
argument vector (never a shell string), runs the binary under a deadline, and
classifies the outcome.

	exit 0, empty or benign stderr      success
	exit 0, any other stderr            *types.EngineError (mutating verbs)
	exit != 0                           *types.EngineError
	"No such container/object"          *types.EngineError wrapping types.ErrNotFound
	deadline exceeded                   types.ErrTimeout

The only benign diagnostic is the kernel swap-limit warning printed when a
memory limit is applied on hosts without swap accounting.

# Batch queries

InspectBatch and StatsBatch pass every name to a single engine invocation
and parse one record per output line:

	docker inspect --format '{{.Name}}:{{.State.Status}}:{{.State.Pid}}' a b c
	docker stats --no-stream --format '{{json .}}' a b c

Records that fail to parse are skipped with a warning. Names the engine does
not know are reported as not found instead of failing the batch. An empty
name set never reaches the engine.

# Container layout

BuildRunArgs turns a RunSpec into the run invocation: detached, labelled with
the owner and as gpubox managed, configured DNS resolvers, root credentials in
the environment, host ports bound to 22 and 8888, CPU and memory limits, a GPU
reservation unless the spec is "none", and the bootstrap script that starts
sshd and Jupyter.
*/
package engine
