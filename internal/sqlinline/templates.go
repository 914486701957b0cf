package sqlinline

const QInsertTemplate = `--sql c3c3fefd-6bad-4ff1-bc8e-bc743cd050bd
insert into templates (id, user_id, name, description, image_url, created_at)
values ($1, $2, $3, $4, $5, $6);
`

const QSelectTemplateByID = `--sql 12cd6301-db0a-49d3-9d87-96e36ea7920c
select id, user_id, name, description, image_url, created_at
from templates
where id = $1;
`

const QSelectTemplatesByUser = `--sql 88d3e24d-8dc3-40d1-b0d1-c950d4714b94
select id, user_id, name, description, image_url, created_at
from templates
where user_id = $1
order by created_at desc;
`
