// Package codes holds the static lookup tables used to describe Task Scheduler
// event levels, operational event IDs, task states and last-run result codes.
//
// The tables are never exported directly. Every lookup is total: an unknown
// key yields ("", false) rather than an error.
package codes

import "sort"

var levelDescriptions = map[int]string{
	2: "ERROR",
	3: "WARNING",
	4: "INFORMATION",
}

var eventIDDescriptions = map[int]string{
	100: "Task Scheduler started the task.",
	101: "Task Scheduler failed to start the task.",
	102: "Task Scheduler successfully finished the task.",
	103: "Task Scheduler failed to start an instance of the task.",
	104: "Task Scheduler failed to log on the user.",
	105: "Task Scheduler failed to impersonate the user.",
	106: "The user registered the Task Scheduler task.",
	107: "Task Scheduler launched the instance of the task due to a time trigger.",
	108: "Task Scheduler launched the instance of the task due to an event trigger.",
	109: "Task Scheduler launched the instance of the task due to a registration trigger.",
	110: "Task Scheduler launched the instance of the task for the user.",
	111: "Task Scheduler terminated the instance of the task.",
	112: "Task Scheduler could not start the task because the network was unavailable.",
	113: "Task Scheduler registered the task, but not all specified triggers will start the task.",
	114: "Task Scheduler could not launch the task as scheduled.",
	115: "Task Scheduler failed to roll back a transaction when updating or deleting a task.",
	116: "Task Scheduler saved the configuration for the task, but the credentials used to run the task could not be stored.",
	117: "Task Scheduler launched the instance of the task due to an idle condition.",
	118: "Task Scheduler launched the instance of the task due to system startup.",
	119: "Task Scheduler launched the instance of the task due to user logon.",
	120: "Task Scheduler launched the instance of the task due to user connecting to the console.",
	121: "Task Scheduler launched the instance of the task due to user disconnecting from the console.",
	122: "Task Scheduler launched the instance of the task due to user remotely connecting.",
	123: "Task Scheduler launched the instance of the task due to user remotely disconnecting.",
	124: "Task Scheduler launched the instance of the task due to user locking the computer.",
	125: "Task Scheduler launched the instance of the task due to user unlocking the computer.",
	126: "Task Scheduler failed to execute the task. Task Scheduler is attempting to restart the task.",
	127: "Task Scheduler failed to execute the task due to a shutdown race condition.",
	128: "Task Scheduler did not launch the task because the current time exceeds the configured task end time.",
	129: "Task Scheduler launched a task process.",
	130: "Task Scheduler failed to start the task due to the service being busy.",
	131: "Task Scheduler failed to start the task because the number of tasks in the task queue exceeds the quota.",
	132: "The Task Scheduler task launching queue quota is approaching its preset limit.",
	133: "Task Scheduler failed to start the task in the task engine.",
	134: "The task engine for the user is approaching its preset limit of tasks.",
	135: "Task Scheduler did not launch the task because the launch condition was not met.",
	136: "The user disabled the Task Scheduler task.",
	140: "The user updated the Task Scheduler task.",
	141: "The user deleted the Task Scheduler task.",
	142: "The user disabled the Task Scheduler task.",
	145: "Task Scheduler woke up the computer to run the task.",
	146: "Task Scheduler failed to subscribe to the event trigger.",
	150: "Task Scheduler failed to launch the task due to an event trigger subscription error.",
	151: "Task Scheduler failed to retrieve the task definition.",
	152: "Task Scheduler failed to launch the task because the COM handler could not be found.",
	153: "Task Scheduler did not launch the task because the computer was running on batteries.",
	200: "Task Scheduler launched the action in the instance of the task.",
	201: "Task Scheduler successfully completed the task instance and action.",
	202: "Task Scheduler failed to complete an instance of the task.",
	203: "Task Scheduler failed to launch the action in the task.",
	204: "Task Scheduler failed to retrieve the event triggering values for the task.",
	205: "Task Scheduler failed to match the pattern of events for the task.",
	301: "Task Scheduler terminated the task engine.",
	303: "Task Scheduler failed to start the task engine.",
	304: "Task Scheduler sent the task to the task engine.",
	305: "Task Scheduler did not send the task to the task engine.",
	306: "Task Scheduler failed to send the task to the task engine.",
	307: "Task Scheduler failed to send a message to the task engine.",
	308: "Task Scheduler failed to connect to the task engine process.",
	309: "Task Scheduler could not load the task engine.",
	310: "Task Scheduler started the task engine process.",
	311: "Task Scheduler failed to start the task engine process due to an error.",
	312: "Task Scheduler created the Win32 job object for the task engine.",
	313: "The task engine received a message to stop.",
	314: "The task engine is idle.",
	315: "The task engine failed to stop.",
	316: "The task engine received a message to stop because of a service shutdown.",
	317: "Task Scheduler started the task engine.",
	318: "Task Scheduler stopped the task engine.",
	319: "The task engine received a message to start the task.",
	320: "The task engine received a message to stop the task.",
	322: "Task Scheduler did not launch the task because an instance of the task is already running.",
	323: "Task Scheduler stopped an instance of the task in order to launch a new instance.",
	324: "Task Scheduler queued the instance of the task and will launch it as soon as another instance completes.",
	325: "Task Scheduler queued the instance of the task.",
	326: "Task Scheduler did not launch the task because the computer was not idle.",
	327: "Task Scheduler stopped the task because the computer is no longer idle.",
	328: "Task Scheduler stopped the task because the computer switched to battery power.",
	329: "Task Scheduler stopped the task because it exceeded its execution time limit.",
	330: "Task Scheduler stopped the task as requested.",
	331: "Task Scheduler did not stop the task because the idle timeout expired.",
	332: "Task Scheduler did not launch the task because the user was not logged on.",
	400: "Task Scheduler service started.",
	401: "Task Scheduler service failed to start.",
	402: "Task Scheduler service is shutting down.",
	403: "Task Scheduler service encountered an error.",
	404: "Task Scheduler service encountered an RPC initialization error.",
	405: "Task Scheduler service failed to initialize COM.",
	406: "Task Scheduler service failed to initialize the credentials store.",
	407: "Task Scheduler service failed to initialize LSA.",
	408: "Task Scheduler service failed to initialize the idle state detection module.",
	409: "Task Scheduler service failed to initialize a time change notification.",
	410: "Task Scheduler service received a time change notification.",
	411: "Task Scheduler service received a message to stop the service.",
	412: "Task Scheduler service failed to initialize the registry.",
}

var stateDescriptions = map[int]string{
	0: "UNKNOWN",
	1: "DISABLED",
	2: "QUEUED",
	3: "READY",
	4: "RUNNING",
}

var resultDescriptions = map[int64]string{
	0:          "Operation completed successfully.",
	1:          "General failure.",
	2:          "The system cannot find the file specified.",
	10:         "System environment failure.",
	267009:     "Task is currently running.",
	267011:     "The task has not yet run.",
	2147750687: "Task scheduler is not available.",
	2147943645: "The device is not ready.",
}

// sortedEventIDs is computed once; EventIDs hands out copies.
var sortedEventIDs = func() []int {
	ids := make([]int, 0, len(eventIDDescriptions))
	for id := range eventIDDescriptions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}()

// LevelDescription returns the text for an event level code.
func LevelDescription(code int) (string, bool) {
	d, ok := levelDescriptions[code]
	return d, ok
}

// EventIDDescription returns the text for a Task Scheduler operational event ID.
func EventIDDescription(id int) (string, bool) {
	d, ok := eventIDDescriptions[id]
	return d, ok
}

// StateDescription returns the name of a registered task state code.
func StateDescription(code int) (string, bool) {
	d, ok := stateDescriptions[code]
	return d, ok
}

// ResultDescription returns the text for a task's last run result. Negative
// values are reinterpreted as the unsigned HRESULT they were read from.
func ResultDescription(code int64) (string, bool) {
	if code < 0 {
		code = int64(uint32(int32(code)))
	}
	d, ok := resultDescriptions[code]
	return d, ok
}

// EventIDs returns every known event ID in ascending order.
func EventIDs() []int {
	out := make([]int, len(sortedEventIDs))
	copy(out, sortedEventIDs)
	return out
}

// Levels returns every known level code in ascending order.
func Levels() []int {
	return []int{2, 3, 4}
}
