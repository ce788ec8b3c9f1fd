package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
)

var (
	app = kingpin.New(
		filepath.Base(os.Args[0]), "Operator console for the storage benchmark manager.",
	).UsageWriter(os.Stdout)

	configFile = app.Flag("config", "Path to the configuration file.").Short('c').String()
	baseURL    = app.Flag("api", "Benchmark manager base URL, overrides api.base_url.").String()

	statusCmd = app.Command("status", "Show console host usage and recent executions.")

	clustersCmd          = app.Command("clusters", "Manage storage clusters.")
	clustersListCmd      = clustersCmd.Command("list", "List registered clusters.").Default()
	clustersAddCmd       = clustersCmd.Command("add", "Register clusters from a YAML file.")
	clustersAddFile      = clustersAddCmd.Flag("file", "YAML file with one cluster or a list of clusters.").Short('f').Required().ExistingFile()
	clustersHealthCmd    = clustersCmd.Command("health", "Show the health of a cluster.")
	clustersHealthName   = clustersHealthCmd.Arg("name", "Cluster name.").Required().String()
	clustersDiscoverCmd  = clustersCmd.Command("discover", "Discover a Ceph cluster through its installer node.")
	clustersDiscoverHost = clustersDiscoverCmd.Arg("host", "Installer node address.").Required().String()
	clustersDiscoverUser = clustersDiscoverCmd.Flag("user", "SSH user on the installer node.").Default("root").String()
	clustersDiscoverKey  = clustersDiscoverCmd.Flag("key", "SSH private key path.").String()
	clustersDiscoverPort = clustersDiscoverCmd.Flag("port", "SSH port.").Default("22").Int()
	clustersRunCmd       = clustersCmd.Command("run", "Run a command on a cluster's installer node.")
	clustersRunName      = clustersRunCmd.Arg("name", "Cluster name.").Required().String()
	clustersRunCommand   = clustersRunCmd.Arg("command", "Command line to run.").Required().String()
	clustersDeleteCmd    = clustersCmd.Command("delete", "Delete a cluster.")
	clustersDeleteName   = clustersDeleteCmd.Arg("name", "Cluster name.").Required().String()

	prechecksCmd     = app.Command("prechecks", "Run readiness checks against a cluster and its clients.")
	prechecksCluster = prechecksCmd.Flag("cluster", "Cluster name.").Required().String()
	prechecksNetwork = prechecksCmd.Flag("network", "Also check the network between clients and cluster.").Bool()

	clientsCmd            = app.Command("clients", "Manage benchmark clients.")
	clientsListCmd        = clientsCmd.Command("list", "List clients with their deployment phase.").Default()
	clientsWatch          = clientsListCmd.Flag("watch", "Keep refreshing until no client is deploying.").Short('w').Bool()
	clientsRegisterCmd    = clientsCmd.Command("register", "Register a batch of clients from a YAML file.")
	clientsRegisterFile   = clientsRegisterCmd.Flag("file", "YAML batch file.").Short('f').Required().ExistingFile()
	clientsDeployCmd      = clientsCmd.Command("deploy", "Deploy the agent to one client.")
	clientsDeployID       = clientsDeployCmd.Arg("id", "Client id.").Required().String()
	clientsDeployAllCmd   = clientsCmd.Command("deploy-all", "Deploy the agent to every client.")
	clientsStopAgentCmd   = clientsCmd.Command("stop-agent", "Stop the agent on one client.")
	clientsStopAgentID    = clientsStopAgentCmd.Arg("id", "Client id.").Required().String()
	clientsDeleteCmd      = clientsCmd.Command("delete", "Delete a client.")
	clientsDeleteID       = clientsDeleteCmd.Arg("id", "Client id.").Required().String()
	clientsHealthCmd      = clientsCmd.Command("health", "Ask every agent to report its health.")
	clientsCephConfigCmd  = clientsCmd.Command("push-ceph-config", "Push a cluster's Ceph configuration to its clients.")
	clientsCephConfigName = clientsCephConfigCmd.Arg("cluster", "Cluster name.").Required().String()
	clientsErrorCmd       = clientsCmd.Command("error", "Show the full error message of a client.")
	clientsErrorID        = clientsErrorCmd.Arg("id", "Client id.").Required().String()

	executionsCmd   = app.Command("executions", "List recent executions.")
	executionsLimit = executionsCmd.Flag("limit", "Number of executions to list.").Default("20").Int()

	runCmd       = app.Command("run", "Start an execution of a workload.")
	runWorkload  = runCmd.Arg("workload", "Workload name.").Required().String()
	runName      = runCmd.Flag("name", "Execution name.").String()
	runPrechecks = runCmd.Flag("prechecks", "Run prechecks before the benchmark.").Default("true").Bool()
	runWatch     = runCmd.Flag("watch", "Watch the execution until it finishes.").Short('w').Bool()

	watchCmd = app.Command("watch", "Follow an execution until it finishes.")
	watchID  = watchCmd.Arg("id", "Execution id.").Required().String()

	stopCmd   = app.Command("stop", "Stop an execution.")
	stopID    = stopCmd.Arg("id", "Execution id.").Required().String()
	pauseCmd  = app.Command("pause", "Pause a running execution.")
	pauseID   = pauseCmd.Arg("id", "Execution id.").Required().String()
	resumeCmd = app.Command("resume", "Resume a paused execution.")
	resumeID  = resumeCmd.Arg("id", "Execution id.").Required().String()

	commandsCmd = app.Command("commands", "Show the remote command log of an execution.")
	commandsID  = commandsCmd.Arg("id", "Execution id.").Required().String()

	networkCmd            = app.Command("network", "Network baselines.")
	networkSuggestCmd     = networkCmd.Command("suggest", "Show the backend's quick network estimate.")
	networkSuggestCluster = networkSuggestCmd.Arg("cluster", "Cluster name.").Required().String()
	networkSuggestType    = networkSuggestCmd.Flag("storage-type", "Storage type.").String()
	networkProfileCmd     = networkCmd.Command("profile", "Run a full network profile and show the baseline.")
	networkProfileCluster = networkProfileCmd.Arg("cluster", "Cluster name.").Required().String()
	networkProfileType    = networkProfileCmd.Flag("storage-type", "Storage type.").String()

	workloadsCmd             = app.Command("workloads", "Manage workload definitions.")
	workloadsListCmd         = workloadsCmd.Command("list", "List workloads.").Default()
	workloadsApplyCmd        = workloadsCmd.Command("apply", "Create or update workloads from a YAML file.")
	workloadsApplyFile       = workloadsApplyCmd.Flag("file", "YAML file with workload definitions.").Short('f').Required().ExistingFile()
	workloadsDeleteCmd       = workloadsCmd.Command("delete", "Delete a workload.")
	workloadsDeleteName      = workloadsDeleteCmd.Arg("name", "Workload name.").Required().String()
	workloadsBaselineCmd     = workloadsCmd.Command("attach-baseline", "Profile the network and store the baseline on a workload.")
	workloadsBaselineName    = workloadsBaselineCmd.Arg("name", "Workload name.").Required().String()
	workloadsBaselineCluster = workloadsBaselineCmd.Flag("cluster", "Cluster to measure, defaults to the workload's cluster.").String()
	workloadsBaselineProfile = workloadsBaselineCmd.Flag("profile", "Run a full profile instead of using the quick estimate.").Bool()

	historyCmd     = app.Command("history", "List executions recorded locally.")
	historyStatus  = historyCmd.Flag("status", "Only show executions with this status.").String()
	historyCluster = historyCmd.Flag("cluster", "Only show executions on this cluster.").String()
	historyLimit   = historyCmd.Flag("limit", "Number of records.").Default("20").Int()
	historyOffset  = historyCmd.Flag("offset", "Records to skip.").Default("0").Int()

	jobsCmd = app.Command("jobs", "Show the schedule of background jobs.")

	relayCmd = app.Command("relay", "Relay an execution's WebSocket live feed onto NATS.")
	relayID  = relayCmd.Arg("id", "Execution id.").Required().String()

	serveCmd     = app.Command("serve", "Run the monitors and serve console views over HTTP.")
	serveAddress = serveCmd.Flag("address", "Listen address, overrides server.address.").String()
)

func main() {
	command, err := app.Parse(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("failed to parse CLI flags: %v", err)
	}

	e, err := newEnv(*configFile, *baseURL)
	if err != nil {
		kingpin.Fatalf("%v", err)
	}
	defer e.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := dispatch(ctx, e, command); err != nil {
		e.logger.Debug("Command failed", zap.String("command", command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		e.close()
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, e *env, command string) error {
	switch command {
	case statusCmd.FullCommand():
		return e.status(ctx)

	case clustersListCmd.FullCommand():
		return e.listClusters(ctx)
	case clustersAddCmd.FullCommand():
		return e.addClusters(ctx, *clustersAddFile)
	case clustersHealthCmd.FullCommand():
		return e.clusterHealth(ctx, *clustersHealthName)
	case clustersDiscoverCmd.FullCommand():
		return e.discoverCluster(ctx, *clustersDiscoverHost, *clustersDiscoverUser, *clustersDiscoverKey, *clustersDiscoverPort)
	case clustersRunCmd.FullCommand():
		return e.runClusterCommand(ctx, *clustersRunName, *clustersRunCommand)
	case clustersDeleteCmd.FullCommand():
		return e.deleteCluster(ctx, *clustersDeleteName)
	case prechecksCmd.FullCommand():
		return e.prechecks(ctx, *prechecksCluster, *prechecksNetwork)

	case clientsListCmd.FullCommand():
		return e.listClients(ctx, *clientsWatch)
	case clientsRegisterCmd.FullCommand():
		return e.registerClients(ctx, *clientsRegisterFile)
	case clientsDeployCmd.FullCommand():
		return e.clientCommand(ctx, "deploy", *clientsDeployID)
	case clientsDeployAllCmd.FullCommand():
		return e.clientCommand(ctx, "deploy-all", "")
	case clientsStopAgentCmd.FullCommand():
		return e.clientCommand(ctx, "stop-agent", *clientsStopAgentID)
	case clientsDeleteCmd.FullCommand():
		return e.clientCommand(ctx, "delete", *clientsDeleteID)
	case clientsHealthCmd.FullCommand():
		return e.clientCommand(ctx, "health", "")
	case clientsCephConfigCmd.FullCommand():
		return e.clientCommand(ctx, "push-ceph-config", *clientsCephConfigName)
	case clientsErrorCmd.FullCommand():
		return e.clientError(ctx, *clientsErrorID)

	case executionsCmd.FullCommand():
		return e.listExecutions(ctx, *executionsLimit)
	case runCmd.FullCommand():
		return e.startExecution(ctx, *runWorkload, *runName, *runPrechecks, *runWatch)
	case watchCmd.FullCommand():
		return e.watch(ctx, *watchID)
	case stopCmd.FullCommand():
		return e.executionCommand(ctx, "stop", *stopID)
	case pauseCmd.FullCommand():
		return e.executionCommand(ctx, "pause", *pauseID)
	case resumeCmd.FullCommand():
		return e.executionCommand(ctx, "resume", *resumeID)
	case commandsCmd.FullCommand():
		return e.commands(ctx, *commandsID)

	case networkSuggestCmd.FullCommand():
		return e.suggest(ctx, *networkSuggestCluster, *networkSuggestType)
	case networkProfileCmd.FullCommand():
		return e.profile(ctx, *networkProfileCluster, *networkProfileType)

	case workloadsListCmd.FullCommand():
		return e.listWorkloads(ctx)
	case workloadsApplyCmd.FullCommand():
		return e.applyWorkloads(ctx, *workloadsApplyFile)
	case workloadsDeleteCmd.FullCommand():
		return e.deleteWorkload(ctx, *workloadsDeleteName)
	case workloadsBaselineCmd.FullCommand():
		return e.attachBaseline(ctx, *workloadsBaselineName, *workloadsBaselineCluster, *workloadsBaselineProfile)

	case historyCmd.FullCommand():
		return e.history(ctx, *historyStatus, *historyCluster, *historyOffset, *historyLimit)
	case jobsCmd.FullCommand():
		return e.jobs()
	case relayCmd.FullCommand():
		return e.relay(ctx, *relayID)
	case serveCmd.FullCommand():
		return e.serve(ctx, *serveAddress)
	}
	return fmt.Errorf("unknown command %q", command)
}

// shutdownTimeout bounds graceful shutdown of the view server
const shutdownTimeout = 10 * time.Second
