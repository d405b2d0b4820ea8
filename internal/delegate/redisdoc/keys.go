package redisdoc

import "fmt"

func jobKey(scheduler, group, name string) string {
	return fmt.Sprintf("qn:%s:job:%s:%s", scheduler, group, name)
}

func jobGroupSetKey(scheduler, group string) string {
	return fmt.Sprintf("qn:%s:jobs:group:%s", scheduler, group)
}

func jobGroupsSetKey(scheduler string) string {
	return fmt.Sprintf("qn:%s:jobs:groups", scheduler)
}

func triggerKey(scheduler, group, name string) string {
	return fmt.Sprintf("qn:%s:trigger:%s:%s", scheduler, group, name)
}

func triggerGroupSetKey(scheduler, group string) string {
	return fmt.Sprintf("qn:%s:triggers:group:%s", scheduler, group)
}

func triggerGroupsSetKey(scheduler string) string {
	return fmt.Sprintf("qn:%s:triggers:groups", scheduler)
}

func triggersByJobKey(scheduler, jobGroup, jobName string) string {
	return fmt.Sprintf("qn:%s:triggers:byjob:%s/%s", scheduler, jobGroup, jobName)
}

func triggersByCalendarKey(scheduler, calName string) string {
	return fmt.Sprintf("qn:%s:triggers:bycal:%s", scheduler, calName)
}

func waitingZSetKey(scheduler string) string {
	return fmt.Sprintf("qn:%s:triggers:waiting", scheduler)
}

func pausedTriggerGroupsKey(scheduler string) string {
	return fmt.Sprintf("qn:%s:paused:trigger-groups", scheduler)
}

func pausedJobGroupsKey(scheduler string) string {
	return fmt.Sprintf("qn:%s:paused:job-groups", scheduler)
}

func calendarKey(scheduler, name string) string {
	return fmt.Sprintf("qn:%s:calendar:%s", scheduler, name)
}

func calendarsSetKey(scheduler string) string {
	return fmt.Sprintf("qn:%s:calendars", scheduler)
}

func firedKey(fireInstanceID string) string {
	return fmt.Sprintf("qn:fired:%s", fireInstanceID)
}

func firedByInstanceKey(scheduler, instanceID string) string {
	return fmt.Sprintf("qn:%s:fired:byinstance:%s", scheduler, instanceID)
}

func firedByJobKey(jobGroup, jobName string) string {
	return fmt.Sprintf("qn:fired:byjob:%s/%s", jobGroup, jobName)
}

func schedStateKey(scheduler, instanceID string) string {
	return fmt.Sprintf("qn:%s:sched:%s", scheduler, instanceID)
}

func schedInstancesSetKey(scheduler string) string {
	return fmt.Sprintf("qn:%s:sched:instances", scheduler)
}

func lockKey(scheduler, lockName string) string {
	return fmt.Sprintf("qn:%s:lock:%s", scheduler, lockName)
}

func triggerMember(group, name string) string {
	return group + "/" + name
}
