package ports

type SchedulerService interface {
	Start()
	Stop()

	// Now returns the current unix time in seconds.
	Now() int64
	ScheduleTask(interval int64, immediate bool, task func()) error
	ScheduleTaskOnce(at int64, task func()) error
}
