package sqlinline

const QInsertTask = `--sql d014c7ca-30ed-4fb1-9bc3-a5e9a75e950b
insert into generation_tasks (id, owner_id, image_ref, prompt_text, state, locale, created_at, updated_at)
values ($1::uuid, $2::text, nullif($3::text, ''), $4::text, 'pending', $5::text, now(), now());
`

const QSelectTaskByID = `--sql 83707c76-c36e-4e7f-b614-4e099835b16a
select
    id, owner_id, coalesce(image_ref, ''), prompt_text,
    coalesce(provider_task_id, ''), state,
    coalesce(result_video_url, ''), coalesce(result_thumbnail_url, ''),
    coalesce(error_message, ''), attempt, coalesce(last_provider_state, ''),
    gave_up, locale, notified_at, created_at, updated_at, completed_at
from generation_tasks
where id = $1::uuid
limit 1;
`

const QMarkSubmitted = `--sql fc9988f3-3764-468f-83ed-3f5234ca35d8
update generation_tasks
set provider_task_id = $2::text,
    state = 'submitted',
    updated_at = now()
where id = $1::uuid
  and state = 'pending';
`

const QMarkPolling = `--sql ea47699d-d4ed-4850-afc0-8cc6f906e0ee
update generation_tasks
set state = 'polling',
    attempt = greatest(attempt, $2::int),
    last_provider_state = $3::text,
    updated_at = now()
where id = $1::uuid
  and state in ('submitted', 'polling');
`

// Conditional terminal writes: the command tag decides which caller won the
// transition, so concurrent finalize attempts stay idempotent without locks.

const QFinalizeSuccess = `--sql df5499d6-32b2-43d9-93d9-b61339456479
update generation_tasks
set state = 'succeeded',
    result_video_url = $2::text,
    result_thumbnail_url = nullif($3::text, ''),
    error_message = null,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid
  and state not in ('succeeded', 'failed');
`

const QFinalizeFailure = `--sql 6c599e07-3f96-4128-a7b3-f7289c471023
update generation_tasks
set state = 'failed',
    error_message = $2::text,
    gave_up = $3::boolean,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid
  and state not in ('succeeded', 'failed');
`

const QMarkNotified = `--sql 62212549-c906-41fa-8493-aa32de144cb9
update generation_tasks
set notified_at = now()
where id = $1::uuid;
`

// A give-up failure stays failed; a provider result that shows up afterwards
// is only recorded, once, for bonus delivery.
const QRecordLateResult = `--sql 94f29f84-42e7-4817-a4ea-21b95c12f619
update generation_tasks
set result_video_url = $2::text,
    result_thumbnail_url = nullif($3::text, ''),
    updated_at = now()
where id = $1::uuid
  and state = 'failed'
  and gave_up
  and result_video_url is null;
`

const QSelectRecheckable = `--sql e9e8242d-7727-4191-ad38-3b8640e21aaf
select
    id, owner_id, coalesce(image_ref, ''), prompt_text,
    coalesce(provider_task_id, ''), state,
    coalesce(result_video_url, ''), coalesce(result_thumbnail_url, ''),
    coalesce(error_message, ''), attempt, coalesce(last_provider_state, ''),
    gave_up, locale, notified_at, created_at, updated_at, completed_at
from generation_tasks
where owner_id = $1::text
  and provider_task_id is not null
  and (
        (state in ('submitted', 'polling') and updated_at < $2::timestamptz)
     or (state = 'failed' and gave_up and result_video_url is null)
  )
order by created_at desc
limit $3::int;
`

const QSelectRecheckableOwners = `--sql 59a28a71-7255-4826-9c7f-c900e3fe52ef
select distinct owner_id
from generation_tasks
where provider_task_id is not null
  and (
        (state in ('submitted', 'polling') and updated_at < $1::timestamptz)
     or (state = 'failed' and gave_up and result_video_url is null)
  )
limit $2::int;
`
