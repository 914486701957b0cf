package sqlinline

const QInsertJob = `--sql bb33e523-8abb-4778-bbaa-524fe5179045
insert into jobs (
    id, user_id, name,
    template_id, template_name, template_description, template_image_url,
    status, progress, variants, data_type, data_content,
    message, created_at, updated_at
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14);
`

const QSelectJobByID = `--sql c10afdd2-b0f8-4d54-9c79-15882bac443d
select id, user_id, name,
       template_id, template_name, template_description, template_image_url,
       status, progress, variants, data_type, data_content,
       message, image_urls, prompts, created_at, updated_at
from jobs
where id = $1;
`

const QSelectJobsByUserNewest = `--sql bc92e025-f753-4c9a-b4a7-d7b3674f3c67
select id, user_id, name,
       template_id, template_name, template_description, template_image_url,
       status, progress, variants, data_type, data_content,
       message, image_urls, prompts, created_at, updated_at
from jobs
where user_id = $1
order by created_at desc;
`

const QSelectJobsByUserOldest = `--sql 4df36700-592e-444c-b5eb-a8449d5b549b
select id, user_id, name,
       template_id, template_name, template_description, template_image_url,
       status, progress, variants, data_type, data_content,
       message, image_urls, prompts, created_at, updated_at
from jobs
where user_id = $1
order by created_at asc;
`

const QDeleteJob = `--sql 98b85c7b-c324-40cb-a7ee-33f9fe292112
delete from jobs
where id = $1;
`

const QMarkJobProcessing = `--sql d65be13c-a0c2-42aa-9f6d-6e2912a200fb
update jobs
set status = 'processing',
    progress = greatest(progress, $2),
    message = $3,
    updated_at = now()
where id = $1
  and status in ('queued', 'processing');
`

const QUpdateJobProgress = `--sql f6fb2c16-b775-4df1-96d6-b2c7457aebf8
update jobs
set progress = greatest(progress, $2),
    message = $3,
    updated_at = now()
where id = $1
  and status = 'processing';
`

const QUpdateJobPrompts = `--sql a08f91e6-b9dd-4b82-9c61-826f5206a761
update jobs
set prompts = $2::jsonb,
    updated_at = now()
where id = $1
  and status = 'processing';
`

const QCompleteJob = `--sql 8b5a75de-aaf8-4c26-aa32-881b99e4e583
update jobs
set status = 'completed',
    progress = 100,
    image_urls = $2,
    message = $3,
    updated_at = now()
where id = $1
  and status = 'processing';
`

const QFailJob = `--sql d635acd3-fbee-40a6-9eaf-7c2fb5a2f88b
update jobs
set status = 'failed',
    message = $2,
    updated_at = now()
where id = $1
  and status in ('queued', 'processing');
`
